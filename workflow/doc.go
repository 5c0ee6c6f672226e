// Copyright (c) PhaseGate Authors.
// Licensed under the MIT License.

/*
Package workflow implements the phase-gated workflow state machine.

# Overview

The engine accepts proposed field writes and phase transitions against a
per-session WorkflowState and produces either a new immutable state or a
structured rejection. Four pieces compose it:

  - State access layer: Read / Write / Canonicalize work identically on a
    structured *types.WorkflowState and on a generic map[string]any. The
    orchestration runtime downstream may normalize one shape into the other
    between steps, so no code in this module touches state fields directly.
  - Matrix: fail-closed field-write authorization keyed by
    (actor, field, phase). Absence of a rule means deny.
  - Validator: enforces the declared linear phase order, skippable phases,
    explicit rollback edges, and required-field exit gates.
  - Engine: composes the above with a session store (optimistic revision
    CAS), an audit sink, zap logging, prometheus metrics, and OTel spans.

# Failure semantics

Policy rejections (unauthorized write, invalid order, missing required
field) are returned as Decision values and recorded in the audit trail; the
input state remains valid and usable. Only infrastructure faults (audit sink
or session store unreachable, stale revision) surface as Go errors.
*/
package workflow
