// Package phasegate provides a top-level convenience entry point for creating
// a workflow engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/phasegate"
//
//	eng, err := phasegate.New()
//	eng, err := phasegate.New(phasegate.WithRules(rules), phasegate.WithLogger(logger))
//
// With no options the engine runs the built-in seven-phase workflow on
// in-memory stores with an empty (deny-everything) authorization matrix.
package phasegate

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/phasegate/audit"
	"github.com/BaSui01/phasegate/config"
	"github.com/BaSui01/phasegate/internal/metrics"
	"github.com/BaSui01/phasegate/internal/telemetry"
	"github.com/BaSui01/phasegate/persistence"
	"github.com/BaSui01/phasegate/types"
	"github.com/BaSui01/phasegate/workflow"
)

// Option configures the engine created by [New].
type Option func(*builder)

type builder struct {
	phases     []types.PhaseDefinition
	rules      []types.AuthorizationRule
	sessions   workflow.SessionStore
	sink       audit.Sink
	logger     *zap.Logger
	registerer prometheus.Registerer
	failOpen   bool
	engineOpts []workflow.EngineOption
}

// WithPhases replaces the built-in phase definitions.
func WithPhases(defs []types.PhaseDefinition) Option {
	return func(b *builder) { b.phases = defs }
}

// WithRules sets the authorization allow-list. Without it every field write
// is denied.
func WithRules(rules []types.AuthorizationRule) Option {
	return func(b *builder) { b.rules = rules }
}

// WithSessionStore sets the session store. Default is in-memory.
func WithSessionStore(s workflow.SessionStore) Option {
	return func(b *builder) { b.sessions = s }
}

// WithAuditSink sets the audit sink. Default is in-memory.
func WithAuditSink(s audit.Sink) Option {
	return func(b *builder) { b.sink = s }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithFailOpenAudit switches the audit failure policy to fail-open and wraps
// the sink in a local buffer that parks undeliverable records.
func WithFailOpenAudit() Option {
	return func(b *builder) { b.failOpen = true }
}

// WithMetricsRegistry registers the engine's prometheus instruments on reg.
// Without it [New] builds no collector and the engine's metric calls are
// no-ops; [NewFromConfig] defaults to prometheus.DefaultRegisterer.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(b *builder) { b.registerer = reg }
}

// WithEngineOptions forwards extra options to [workflow.NewEngine].
func WithEngineOptions(opts ...workflow.EngineOption) Option {
	return func(b *builder) { b.engineOpts = append(b.engineOpts, opts...) }
}

// New assembles a workflow engine from the options.
func New(opts ...Option) (*workflow.Engine, error) {
	b := &builder{
		phases: types.DefaultPhases(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	ps, err := workflow.NewPhaseSet(b.phases)
	if err != nil {
		return nil, fmt.Errorf("invalid phase definitions: %w", err)
	}

	if b.sessions == nil {
		b.sessions = persistence.NewMemorySessionStore()
	}
	if b.sink == nil {
		b.sink = audit.NewMemorySink()
	}

	engineOpts := append([]workflow.EngineOption{workflow.WithLogger(b.logger)}, b.engineOpts...)
	if b.registerer != nil {
		engineOpts = append(engineOpts,
			workflow.WithCollector(metrics.NewCollector("phasegate", b.registerer, b.logger)))
	}
	if b.failOpen {
		b.sink = audit.NewBuffered(b.sink, audit.DefaultBufferConfig(), b.logger)
		engineOpts = append(engineOpts, workflow.WithAuditPolicy(workflow.AuditFailOpen))
	}

	return workflow.NewEngine(ps, workflow.NewMatrix(b.rules), b.sessions, b.sink, engineOpts...), nil
}

// NewFromConfig assembles an engine from a loaded configuration: phases and
// rules from the workflow section, stores from the session and audit
// sections, prometheus instruments on the default registerer, and the OTel
// export pipeline when the telemetry section enables it. The returned
// shutdown func flushes and closes the telemetry providers; call it when the
// engine is retired (it is a no-op with telemetry disabled). Extra options
// are applied last and may override the config-derived ones.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, extra ...Option) (*workflow.Engine, func(context.Context) error, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = config.NewLogger(cfg.Log)
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: %w", err)
	}

	sessions, err := persistence.NewSessionStore(cfg.Session, logger)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("session store: %w", err)
	}
	sink, err := persistence.NewAuditSink(cfg.Audit.Store, logger)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("audit sink: %w", err)
	}

	opts := []Option{
		WithPhases(cfg.Workflow.PhaseDefinitions()),
		WithRules(cfg.Workflow.AuthorizationRules()),
		WithSessionStore(sessions),
		WithAuditSink(sink),
		WithLogger(logger),
		WithMetricsRegistry(prometheus.DefaultRegisterer),
	}
	if cfg.Audit.Policy == "fail_open" {
		opts = append(opts, WithFailOpenAudit())
	}
	opts = append(opts, extra...)

	eng, err := New(opts...)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, nil, err
	}
	return eng, providers.Shutdown, nil
}
