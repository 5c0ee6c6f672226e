// Copyright (c) PhaseGate Authors.
// Licensed under the MIT License.

/*
Package audit defines the append-only audit trail contract and the buffering
wrapper used under the fail-open availability policy.

A Sink accepts AuditRecord appends and serves chronological per-session
queries. Persistence backends (memory, file, Redis, GORM, MongoDB) live in
the persistence package; this package owns the interface, an in-memory
reference implementation, and Buffered, a decorator whose Append never
fails: records the underlying sink cannot take are parked in a bounded local
buffer and flushed in the background with rate-limited, exponentially
backed-off retries.

The engine is handed a Sink at construction (explicit lifecycle, no ambient
global): open it at session-manager start, Close it at shutdown to flush.
*/
package audit
