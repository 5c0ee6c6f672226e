// Copyright (c) PhaseGate Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type contracts of the PhaseGate engine.

types is the lowest-level public package. It depends on nothing inside the
module and defines everything that crosses package boundaries: the phase
enum and its definitions, the workflow state record, authorization rules,
audit records, and the structured error taxonomy.

# Core types

  - Phase / PhaseDefinition: named workflow stage with ordered position,
    required-field gate, writable-field set, and explicit rollback edges
  - WorkflowState           : per-session state record with phase history,
    free-form domain fields, and a monotonic revision counter
  - AuthorizationRule       : (actor, field, phases) allow entry; the
    authorization matrix is a strict enumeration, absence means deny
  - AuditRecord             : immutable log entry for one decision
  - Error / ErrorCode       : structured errors returned as values for all
    expected rejection paths; only infrastructure faults are Go errors

All rejection outcomes (unauthorized write, invalid transition, missing
required field) are carried in Decision values rather than raised errors, so
callers map them to responses without special-casing.
*/
package types
