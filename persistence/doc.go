// Package persistence provides persistent storage implementations for
// workflow sessions and audit trails.
//
// Two contracts are served:
//  1. Session state with optimistic concurrency (workflow.SessionStore):
//     a Save commits only against the expected revision.
//  2. Append-only audit records with chronological retrieval (audit.Sink).
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - File: for single-node deployments
//   - Redis: for distributed deployments (WATCH-based revision CAS)
//   - GORM (postgres / mysql / sqlite): audit trail in a relational store
//   - MongoDB: audit trail in a document store
package persistence
