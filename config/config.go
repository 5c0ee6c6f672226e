package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/phasegate/persistence"
	"github.com/BaSui01/phasegate/types"
)

// Config is the complete PhaseGate configuration.
type Config struct {
	// Workflow declares the phase order and the authorization rules.
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Session selects the session store backend.
	Session persistence.StoreConfig `yaml:"session" env:"SESSION"`

	// Audit selects the audit sink backend and the failure policy.
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures the OTel SDK.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// WorkflowConfig declares phases and authorization rules.
type WorkflowConfig struct {
	// Phases in declared order. Empty means the built-in default workflow.
	Phases []PhaseConfig `yaml:"phases"`

	// Rules is the enumerated allow-list of the authorization matrix.
	Rules []RuleConfig `yaml:"rules"`
}

// PhaseConfig declares one phase. Position is implied by list order.
type PhaseConfig struct {
	Name            string   `yaml:"name"`
	RequiredFields  []string `yaml:"required_fields"`
	WritableFields  []string `yaml:"writable_fields"`
	Skippable       bool     `yaml:"skippable"`
	RollbackTargets []string `yaml:"rollback_targets"`
}

// RuleConfig declares one authorization allow entry.
type RuleConfig struct {
	Actor  string   `yaml:"actor"`
	Field  string   `yaml:"field"`
	Phases []string `yaml:"phases"`
}

// AuditConfig selects the audit backend and failure policy.
type AuditConfig struct {
	// Store selects and configures the backend.
	Store persistence.StoreConfig `yaml:"store" env:"STORE"`

	// Policy is "fail_closed" (reject mutations when the sink is down,
	// the default) or "fail_open" (buffer locally and flush on recovery).
	Policy string `yaml:"policy" env:"POLICY"`

	// BufferMaxPending bounds the fail-open local buffer.
	BufferMaxPending int `yaml:"buffer_max_pending" env:"BUFFER_MAX_PENDING"`

	// FlushInterval is the fail-open background flush cadence.
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap output targets.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig configures the OTel SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the defaults: the built-in seven-phase workflow,
// memory stores, fail-closed auditing, console logging.
func DefaultConfig() *Config {
	return &Config{
		Workflow: DefaultWorkflowConfig(),
		Session:  persistence.DefaultStoreConfig(),
		Audit: AuditConfig{
			Store:            persistence.DefaultStoreConfig(),
			Policy:           "fail_closed",
			BufferMaxPending: 4096,
			FlushInterval:    1 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "phasegate",
			SampleRate:   1.0,
		},
	}
}

// DefaultWorkflowConfig mirrors types.DefaultPhases with a permissive rule
// set for the built-in actors.
func DefaultWorkflowConfig() WorkflowConfig {
	phases := make([]PhaseConfig, 0)
	for _, d := range types.DefaultPhases() {
		rollbacks := make([]string, 0, len(d.RollbackTargets))
		for _, rb := range d.RollbackTargets {
			rollbacks = append(rollbacks, string(rb))
		}
		phases = append(phases, PhaseConfig{
			Name:            string(d.Name),
			RequiredFields:  d.RequiredFields,
			WritableFields:  d.WritableFields,
			Skippable:       d.Skippable,
			RollbackTargets: rollbacks,
		})
	}
	return WorkflowConfig{
		Phases: phases,
		Rules: []RuleConfig{
			{Actor: "collector", Field: "requirements_complete", Phases: []string{"initialization"}},
			{Actor: "collector", Field: "discovery_summary", Phases: []string{"discovery"}},
			{Actor: "analyst", Field: "analysis_report", Phases: []string{"analysis"}},
			{Actor: "generator", Field: "generated_output", Phases: []string{"generation"}},
			{Actor: "reviewer", Field: "review_verdict", Phases: []string{"review"}},
			{Actor: "deliverer", Field: "delivery_receipt", Phases: []string{"delivery"}},
		},
	}
}

// PhaseDefinitions converts the declared phases into validated engine input.
func (w WorkflowConfig) PhaseDefinitions() []types.PhaseDefinition {
	out := make([]types.PhaseDefinition, 0, len(w.Phases))
	for i, p := range w.Phases {
		rollbacks := make([]types.Phase, 0, len(p.RollbackTargets))
		for _, rb := range p.RollbackTargets {
			rollbacks = append(rollbacks, types.Phase(rb))
		}
		out = append(out, types.PhaseDefinition{
			Name:            types.Phase(p.Name),
			Position:        i,
			RequiredFields:  p.RequiredFields,
			WritableFields:  p.WritableFields,
			Skippable:       p.Skippable,
			RollbackTargets: rollbacks,
		})
	}
	return out
}

// AuthorizationRules converts the declared rules into engine input.
func (w WorkflowConfig) AuthorizationRules() []types.AuthorizationRule {
	out := make([]types.AuthorizationRule, 0, len(w.Rules))
	for _, r := range w.Rules {
		phases := make([]types.Phase, 0, len(r.Phases))
		for _, p := range r.Phases {
			phases = append(phases, types.Phase(p))
		}
		out = append(out, types.AuthorizationRule{Actor: r.Actor, Field: r.Field, Phases: phases})
	}
	return out
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Workflow.Phases) == 0 {
		errs = append(errs, "workflow must declare at least one phase")
	}
	known := make(map[string]bool, len(c.Workflow.Phases))
	for _, p := range c.Workflow.Phases {
		if p.Name == "" {
			errs = append(errs, "phase with empty name")
			continue
		}
		if known[p.Name] {
			errs = append(errs, fmt.Sprintf("duplicate phase %q", p.Name))
		}
		known[p.Name] = true
	}
	for _, p := range c.Workflow.Phases {
		for _, rb := range p.RollbackTargets {
			if !known[rb] {
				errs = append(errs, fmt.Sprintf("phase %q rolls back to unknown phase %q", p.Name, rb))
			}
		}
	}
	for _, r := range c.Workflow.Rules {
		if r.Actor == "" || r.Field == "" {
			errs = append(errs, "rule with empty actor or field")
		}
		for _, p := range r.Phases {
			if !known[p] {
				errs = append(errs, fmt.Sprintf("rule for %s/%s names unknown phase %q", r.Actor, r.Field, p))
			}
		}
	}

	switch c.Audit.Policy {
	case "", "fail_closed", "fail_open":
	default:
		errs = append(errs, fmt.Sprintf("unknown audit policy %q", c.Audit.Policy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
