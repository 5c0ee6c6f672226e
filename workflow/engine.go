package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/phasegate/audit"
	"github.com/BaSui01/phasegate/internal/metrics"
	"github.com/BaSui01/phasegate/types"
)

// SessionStore persists the current WorkflowState revision per session with
// an optimistic revision check. Implementations live in the persistence
// package; the engine only depends on this interface.
type SessionStore interface {
	// Create stores a new session. Returns ErrSessionExists if present.
	Create(ctx context.Context, state *types.WorkflowState) error

	// Load returns the current state. Returns ErrSessionNotFound if absent.
	Load(ctx context.Context, sessionID string) (*types.WorkflowState, error)

	// Save replaces the state only if the stored revision still equals
	// expectedRevision. Returns ErrStaleRevision otherwise.
	Save(ctx context.Context, state *types.WorkflowState, expectedRevision uint64) error

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}

// AuditPolicy selects how the engine treats a failing audit sink.
type AuditPolicy string

const (
	// AuditFailClosed rejects the mutating operation when the audit record
	// cannot be appended. Recommended for compliance-sensitive deployments.
	AuditFailClosed AuditPolicy = "fail_closed"

	// AuditFailOpen proceeds on append failure. Meant to be combined with
	// audit.Buffered, which parks undeliverable records locally.
	AuditFailOpen AuditPolicy = "fail_open"
)

const (
	opFieldWrite = "field_write"
	opTransition = "phase_transition"
	opArchive    = "archive"

	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFault    = "fault"
)

// Engine is the workflow state machine. It exclusively owns mutation of
// WorkflowState: every change flows through a proposal, is authorized and
// validated, recorded in the audit trail, and committed against the
// session's current revision.
type Engine struct {
	phases  atomic.Pointer[PhaseSet]
	matrix  atomic.Pointer[Matrix]
	checker atomic.Pointer[Validator]

	sessions SessionStore
	sink     audit.Sink
	policy   AuditPolicy

	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer

	// Per-session advisory locks serialize in-process proposals; the
	// store-level revision CAS catches cross-process races.
	locks sync.Map // sessionID -> *sync.Mutex

	// Rejected field writes not yet superseded by an accepted write, per
	// session. Rebuilt lazily from the audit trail.
	outstanding sync.Map // sessionID -> map[string]string

	now   func() time.Time
	newID func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the zap logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAuditPolicy selects the audit failure policy. Default is fail-closed.
func WithAuditPolicy(p AuditPolicy) EngineOption {
	return func(e *Engine) {
		if p == AuditFailClosed || p == AuditFailOpen {
			e.policy = p
		}
	}
}

// WithCollector sets the metrics collector. Nil disables metrics.
func WithCollector(c *metrics.Collector) EngineOption {
	return func(e *Engine) { e.collector = c }
}

// WithTracer overrides the OTel tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine composes the state machine from its collaborators. The audit
// sink and session store are injected with explicit lifecycle: the engine
// never owns ambient global state.
func NewEngine(phases *PhaseSet, matrix *Matrix, sessions SessionStore, sink audit.Sink, opts ...EngineOption) *Engine {
	e := &Engine{
		sessions: sessions,
		sink:     sink,
		policy:   AuditFailClosed,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/BaSui01/phasegate/workflow"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	e.phases.Store(phases)
	e.matrix.Store(matrix)
	e.checker.Store(NewValidator(phases))
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"))
	return e
}

// SwapRules atomically replaces the authorization matrix. Used by the
// configuration hot-reloader; in-flight proposals keep the matrix they
// started with.
func (e *Engine) SwapRules(rules []types.AuthorizationRule) {
	e.matrix.Store(NewMatrix(rules))
	e.logger.Info("authorization matrix swapped", zap.Int("allow_cells", e.matrix.Load().Len()))
}

// SwapPhases atomically replaces the phase set.
func (e *Engine) SwapPhases(defs []types.PhaseDefinition) error {
	ps, err := NewPhaseSet(defs)
	if err != nil {
		return err
	}
	e.phases.Store(ps)
	e.checker.Store(NewValidator(ps))
	e.logger.Info("phase set swapped", zap.Int("phases", ps.Len()))
	return nil
}

// Phases returns the current phase set.
func (e *Engine) Phases() *PhaseSet { return e.phases.Load() }

// Matrix returns the current authorization matrix.
func (e *Engine) Matrix() *Matrix { return e.matrix.Load() }

// StartSession creates a new session in the first phase at revision 1.
// An empty sessionID gets a generated UUID.
func (e *Engine) StartSession(ctx context.Context, sessionID string) (*types.WorkflowState, error) {
	if sessionID == "" {
		sessionID = e.newID()
	}
	ctx, span := e.tracer.Start(ctx, "engine.StartSession",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	unlock := e.lockSession(sessionID)
	defer unlock()

	ps := e.phases.Load()
	now := e.now()
	state := &types.WorkflowState{
		SessionID:    sessionID,
		Phase:        ps.First(),
		PhaseHistory: []types.PhaseTraversal{{Phase: ps.First(), EnteredAt: now}},
		Fields:       make(map[string]any),
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	rec := e.newRecord(sessionID, "", ps.First(), types.AuditActionTransition, "", ps.First(),
		types.AuditAccepted, "session started", 1)
	state.AuditRefs = append(state.AuditRefs, rec.ID)

	// Create before appending: a rejected create (duplicate ID) must not
	// leave an accepted record in the trail for a session that never existed.
	if err := e.sessions.Create(ctx, state); err != nil {
		return nil, err
	}
	if err := e.appendAudit(ctx, rec); err != nil {
		// Fail-closed audit: undo the create so the session can be started
		// again once the sink recovers.
		if delErr := e.sessions.Delete(ctx, sessionID); delErr != nil {
			e.logger.Error("failed to undo session create after audit failure",
				zap.String("session_id", sessionID), zap.Error(delErr))
		}
		return nil, err
	}

	e.collector.SessionStarted()
	e.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("phase", string(ps.First())))
	return state, nil
}

// ProposeFieldWrite checks the authorization matrix for (actor, field,
// current phase), applies the write copy-on-write on allow, records the
// decision in the audit trail, and commits against the snapshot's revision.
//
// The returned state has the same shape as the input. Policy denials come
// back as a rejecting Decision with a nil error; only infrastructure faults
// (stale revision, unreachable stores) populate the error.
func (e *Engine) ProposeFieldWrite(ctx context.Context, state any, actor, field string, value any) (any, Decision, error) {
	start := e.now()
	sid := SessionID(state)
	ctx, span := e.tracer.Start(ctx, "engine.ProposeFieldWrite", trace.WithAttributes(
		attribute.String("session_id", sid),
		attribute.String("actor", actor),
		attribute.String("field", field)))
	defer span.End()

	if sid == "" {
		return state, Decision{}, types.NewError(types.ErrSessionNotFound, "state carries no session id")
	}
	unlock := e.lockSession(sid)
	defer unlock()

	phase := CurrentPhase(state)
	rev := Revision(state)

	d := e.authorizeWrite(state, actor, field, phase)
	if !d.Accepted {
		rec := e.newRecord(sid, actor, phase, types.AuditActionFieldWrite, field, "",
			types.AuditRejected, d.Reason, rev)
		if err := e.appendAudit(ctx, rec); err != nil {
			e.collector.ObserveDecision(opFieldWrite, outcomeFault, e.now().Sub(start))
			return state, Decision{}, err
		}
		e.markOutstanding(sid, field, d.Reason)
		e.collector.ObserveDecision(opFieldWrite, outcomeRejected, e.now().Sub(start))
		e.logger.Info("field write rejected",
			zap.String("session_id", sid),
			zap.String("actor", actor),
			zap.String("field", field),
			zap.String("reason", d.Reason))
		return state, d, nil
	}

	next := Write(state, field, value)
	next = Write(next, KeyRevision, rev+1)
	canon, err := Canonicalize(next)
	if err != nil {
		return state, Decision{}, err
	}
	canon.UpdatedAt = e.now()

	rec := e.newRecord(sid, actor, phase, types.AuditActionFieldWrite, field, "",
		types.AuditAccepted, "", rev+1)
	canon.AuditRefs = append(canon.AuditRefs, rec.ID)

	if err := e.commit(ctx, canon, rev, rec); err != nil {
		e.collector.ObserveDecision(opFieldWrite, outcomeFault, e.now().Sub(start))
		return state, Decision{}, err
	}

	e.clearOutstanding(sid, field)
	e.collector.ObserveDecision(opFieldWrite, outcomeAccepted, e.now().Sub(start))
	e.logger.Debug("field write accepted",
		zap.String("session_id", sid),
		zap.String("actor", actor),
		zap.String("field", field),
		zap.Uint64("revision", canon.Revision))
	return reshape(state, canon), d, nil
}

func (e *Engine) authorizeWrite(state any, actor, field string, phase types.Phase) Decision {
	if Archived(state) {
		return Reject(types.ErrSessionArchived, "session is archived")
	}
	pdef, ok := e.phases.Load().Definition(phase)
	if !ok {
		return Reject(types.ErrUnknownPhase, fmt.Sprintf("unknown current phase %q", phase))
	}
	if !pdef.AllowsWrite(field) {
		return Reject(types.ErrFieldNotWritable,
			fmt.Sprintf("field %q is not writable in phase %s", field, phase))
	}
	if !e.matrix.Load().CanWrite(actor, field, phase) {
		return Reject(types.ErrUnauthorizedWrite, "unauthorized field write")
	}
	return Accept()
}

// ProposeTransition validates the move to target and, on success, produces a
// new state with the phase updated and the traversal appended to the phase
// history. Rollbacks clear the required-field state of every phase after the
// rollback target. Same-phase proposals are idempotent no-op successes with
// no audit record and no history change.
func (e *Engine) ProposeTransition(ctx context.Context, state any, actor string, target types.Phase) (any, Decision, error) {
	start := e.now()
	sid := SessionID(state)
	ctx, span := e.tracer.Start(ctx, "engine.ProposeTransition", trace.WithAttributes(
		attribute.String("session_id", sid),
		attribute.String("target", string(target))))
	defer span.End()

	if sid == "" {
		return state, Decision{}, types.NewError(types.ErrSessionNotFound, "state carries no session id")
	}
	unlock := e.lockSession(sid)
	defer unlock()

	phase := CurrentPhase(state)
	rev := Revision(state)
	action := e.transitionAction(phase, target)

	d := e.checker.Load().ValidateTransition(state, target, e.outstandingFor(ctx, sid))
	switch {
	case d.NoOp:
		e.collector.ObserveDecision(opTransition, outcomeAccepted, e.now().Sub(start))
		return state, d, nil

	case !d.Accepted:
		rec := e.newRecord(sid, actor, phase, action, "", target, types.AuditRejected, d.Reason, rev)
		if err := e.appendAudit(ctx, rec); err != nil {
			e.collector.ObserveDecision(opTransition, outcomeFault, e.now().Sub(start))
			return state, Decision{}, err
		}
		e.collector.ObserveDecision(opTransition, outcomeRejected, e.now().Sub(start))
		e.logger.Info("transition rejected",
			zap.String("session_id", sid),
			zap.String("from", string(phase)),
			zap.String("to", string(target)),
			zap.String("reason", d.Reason))
		return state, d, nil
	}

	canon, err := Canonicalize(state)
	if err != nil {
		return state, Decision{}, err
	}
	e.applyTransition(canon, target, d.Rollback)
	canon.Revision = rev + 1

	rec := e.newRecord(sid, actor, phase, action, "", target, types.AuditAccepted, "", rev+1)
	canon.AuditRefs = append(canon.AuditRefs, rec.ID)

	if err := e.commit(ctx, canon, rev, rec); err != nil {
		e.collector.ObserveDecision(opTransition, outcomeFault, e.now().Sub(start))
		return state, Decision{}, err
	}

	e.collector.ObserveDecision(opTransition, outcomeAccepted, e.now().Sub(start))
	e.logger.Info("transition accepted",
		zap.String("session_id", sid),
		zap.String("from", string(phase)),
		zap.String("to", string(target)),
		zap.Bool("rollback", d.Rollback),
		zap.Uint64("revision", canon.Revision))
	return reshape(state, canon), d, nil
}

func (e *Engine) transitionAction(from, to types.Phase) types.AuditAction {
	ps := e.phases.Load()
	i, iok := ps.Position(from)
	j, jok := ps.Position(to)
	if iok && jok && j < i {
		return types.AuditActionRollback
	}
	return types.AuditActionTransition
}

func (e *Engine) applyTransition(canon *types.WorkflowState, target types.Phase, rollback bool) {
	now := e.now()
	canon.Phase = target
	canon.PhaseHistory = append(canon.PhaseHistory, types.PhaseTraversal{
		Phase:     target,
		EnteredAt: now,
		Rollback:  rollback,
	})
	canon.UpdatedAt = now

	if rollback {
		// A rollback invalidates everything produced after the target: the
		// required-field state of all downstream phases is reset.
		for _, def := range e.phases.Load().After(target) {
			for _, f := range def.RequiredFields {
				delete(canon.Fields, f)
			}
		}
	}
}

// Archive archives a session sitting in the terminal phase. Archived states
// accept no further proposals.
func (e *Engine) Archive(ctx context.Context, sessionID string) (*types.WorkflowState, Decision, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Archive",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	unlock := e.lockSession(sessionID)
	defer unlock()
	return e.archiveLocked(ctx, sessionID, "", false)
}

func (e *Engine) archiveLocked(ctx context.Context, sessionID, reason string, force bool) (*types.WorkflowState, Decision, error) {
	state, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, Decision{}, err
	}
	if state.Archived {
		d := Accept()
		d.NoOp = true
		return state, d, nil
	}
	if !force && !e.phases.Load().IsTerminal(state.Phase) {
		d := Reject(types.ErrInvalidTransition,
			fmt.Sprintf("archive requires terminal phase %s, session is in %s", e.phases.Load().Last(), state.Phase))
		rec := e.newRecord(sessionID, "", state.Phase, types.AuditActionArchive, "", "",
			types.AuditRejected, d.Reason, state.Revision)
		if err := e.appendAudit(ctx, rec); err != nil {
			return state, Decision{}, err
		}
		return state, d, nil
	}

	rev := state.Revision
	canon := state.Clone()
	canon.Archived = true
	canon.UpdatedAt = e.now()
	canon.Revision = rev + 1

	rec := e.newRecord(sessionID, "", canon.Phase, types.AuditActionArchive, "", "",
		types.AuditAccepted, reason, rev+1)
	canon.AuditRefs = append(canon.AuditRefs, rec.ID)

	if err := e.commit(ctx, canon, rev, rec); err != nil {
		return state, Decision{}, err
	}
	e.outstanding.Delete(sessionID)
	e.collector.SessionArchived()
	e.logger.Info("session archived", zap.String("session_id", sessionID))
	return canon, Accept(), nil
}

// Restart archives the existing session whatever phase it is in and starts a
// fresh one with a new identifier, a fresh revision counter, and an empty
// audit trail. The old session's trail is preserved untouched: audit records
// are never erased.
func (e *Engine) Restart(ctx context.Context, sessionID string) (*types.WorkflowState, error) {
	func() {
		unlock := e.lockSession(sessionID)
		defer unlock()
		if _, _, err := e.archiveLocked(ctx, sessionID, "session restarted", true); err != nil {
			if !types.IsErrorCode(err, types.ErrSessionNotFound) {
				e.logger.Warn("restart could not archive previous session",
					zap.String("session_id", sessionID), zap.Error(err))
			}
		}
	}()
	return e.StartSession(ctx, "")
}

// QueryAudit returns the session's audit trail in chronological order.
func (e *Engine) QueryAudit(ctx context.Context, sessionID string) ([]types.AuditRecord, error) {
	return e.sink.Query(ctx, sessionID)
}

// CurrentState loads the latest committed state for a session.
func (e *Engine) CurrentState(ctx context.Context, sessionID string) (*types.WorkflowState, error) {
	return e.sessions.Load(ctx, sessionID)
}

// commit appends the audit record and then swaps the session state via
// revision CAS. The stale precheck runs first so conflicts are returned
// before an audit record exists for a change that never committed; the
// session lock removes in-process races, and the Save-level CAS catches
// cross-process ones.
func (e *Engine) commit(ctx context.Context, canon *types.WorkflowState, expected uint64, rec types.AuditRecord) error {
	current, err := e.sessions.Load(ctx, canon.SessionID)
	if err != nil {
		return err
	}
	if current.Revision != expected {
		e.collector.StaleConflict()
		return types.NewStaleRevisionError(canon.SessionID, expected, current.Revision)
	}

	if err := e.appendAudit(ctx, rec); err != nil {
		return err
	}

	if err := e.sessions.Save(ctx, canon, expected); err != nil {
		if types.IsErrorCode(err, types.ErrStaleRevision) {
			e.collector.StaleConflict()
			e.logger.Warn("audit record refers to a proposal lost to a concurrent commit",
				zap.String("session_id", canon.SessionID),
				zap.String("audit_id", rec.ID))
		}
		return err
	}
	return nil
}

// appendAudit applies the configured audit failure policy.
func (e *Engine) appendAudit(ctx context.Context, rec types.AuditRecord) error {
	err := e.sink.Append(ctx, rec)
	if err == nil {
		return nil
	}
	e.collector.AuditAppendFailure()
	if e.policy == AuditFailOpen {
		e.logger.Warn("audit append failed, proceeding under fail-open policy",
			zap.String("session_id", rec.SessionID), zap.Error(err))
		return nil
	}
	return types.NewError(types.ErrAuditUnavailable, "audit sink unavailable").
		WithCause(err).WithRetryable(true)
}

func (e *Engine) newRecord(sessionID, actor string, phase types.Phase, action types.AuditAction,
	field string, target types.Phase, outcome types.AuditOutcome, reason string, revision uint64) types.AuditRecord {
	return types.AuditRecord{
		ID:        e.newID(),
		SessionID: sessionID,
		Timestamp: e.now(),
		Actor:     actor,
		Phase:     phase,
		Action:    action,
		Field:     field,
		Target:    target,
		Outcome:   outcome,
		Reason:    reason,
		Revision:  revision,
	}
}

func (e *Engine) lockSession(sessionID string) func() {
	v, _ := e.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// outstandingFor returns the rejected-write set for a session, rebuilding it
// from the audit trail on first access after a restart. Called under the
// session lock.
func (e *Engine) outstandingFor(ctx context.Context, sessionID string) map[string]string {
	if v, ok := e.outstanding.Load(sessionID); ok {
		return v.(map[string]string)
	}
	m := make(map[string]string)
	recs, err := e.sink.Query(ctx, sessionID)
	if err != nil {
		e.logger.Warn("could not rebuild outstanding rejections from audit trail",
			zap.String("session_id", sessionID), zap.Error(err))
	} else {
		for _, r := range recs {
			if r.Action != types.AuditActionFieldWrite || r.Field == "" {
				continue
			}
			if r.Outcome == types.AuditRejected {
				m[r.Field] = r.Reason
			} else {
				delete(m, r.Field)
			}
		}
	}
	e.outstanding.Store(sessionID, m)
	return m
}

func (e *Engine) markOutstanding(sessionID, field, reason string) {
	m := e.outstandingFor(context.Background(), sessionID)
	m[field] = reason
}

func (e *Engine) clearOutstanding(sessionID, field string) {
	m := e.outstandingFor(context.Background(), sessionID)
	delete(m, field)
}

// reshape returns canon in the same representation the caller handed in.
func reshape(original any, canon *types.WorkflowState) any {
	switch original.(type) {
	case *types.WorkflowState:
		return canon
	case types.WorkflowState:
		return *canon
	case map[string]any:
		m, err := ToMapping(canon)
		if err != nil {
			return canon
		}
		return m
	default:
		return canon
	}
}
