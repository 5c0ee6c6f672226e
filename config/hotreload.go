package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/phasegate/types"
)

// RuleTarget is the engine surface the reloader drives. Rules swap without
// error; a bad phase topology is rejected and the old one stays in effect.
type RuleTarget interface {
	SwapRules(rules []types.AuthorizationRule)
	SwapPhases(defs []types.PhaseDefinition) error
}

// Reloader watches the config file and applies workflow changes to a running
// engine. Sessions in flight are untouched; only the rule matrix and the
// phase topology swap.
type Reloader struct {
	mu sync.RWMutex

	target     RuleTarget
	configPath string
	loader     *Loader
	watcher    *FileWatcher
	logger     *zap.Logger

	// group collapses bursts of file events into one reload.
	group singleflight.Group

	current *Config
	applied int

	running bool
	cancel  context.CancelFunc
}

// ReloaderOption configures the Reloader.
type ReloaderOption func(*Reloader)

// WithReloaderLogger sets the logger.
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReloaderEnvPrefix overrides the env prefix used on reload.
func WithReloaderEnvPrefix(prefix string) ReloaderOption {
	return func(r *Reloader) {
		r.loader = r.loader.WithEnvPrefix(prefix)
	}
}

// NewReloader creates a reloader for the given engine and config file.
func NewReloader(target RuleTarget, configPath string, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		target:     target,
		configPath: configPath,
		loader:     NewLoader().WithConfigPath(configPath),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start loads the file once, applies it, then watches for changes.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reloader already running")
	}

	if _, err := r.reload(); err != nil {
		return fmt.Errorf("initial config load failed: %w", err)
	}

	watcher, err := NewFileWatcher(
		[]string{r.configPath},
		WithWatcherLogger(r.logger),
		WithDebounceDelay(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	watcher.OnChange(r.handleFileChange)

	ctx, r.cancel = context.WithCancel(ctx)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	r.watcher = watcher
	r.running = true
	r.logger.Info("config reloader started", zap.String("path", r.configPath))
	return nil
}

// Stop stops watching. The last applied configuration stays in effect.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.watcher != nil {
		if err := r.watcher.Stop(); err != nil {
			r.logger.Error("failed to stop file watcher", zap.Error(err))
		}
	}
	r.running = false
	r.logger.Info("config reloader stopped")
	return nil
}

func (r *Reloader) handleFileChange(event FileEvent) {
	if event.Op != FileOpWrite && event.Op != FileOpCreate {
		return
	}
	if _, err := r.Reload(); err != nil {
		r.logger.Error("config reload failed, keeping current workflow",
			zap.Error(err), zap.String("path", event.Path))
	}
}

// Reload re-reads the file and applies it. Concurrent callers share one
// load; the engine sees each distinct file state at most once.
func (r *Reloader) Reload() (*Config, error) {
	v, err, _ := r.group.Do("reload", func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.reload()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Config), nil
}

// reload loads, validates, and applies. Caller holds r.mu.
func (r *Reloader) reload() (*Config, error) {
	cfg, err := r.loader.Load()
	if err != nil {
		return nil, err
	}

	// Phases first: a rejected topology keeps the old rules too, so the
	// pair never applies half.
	if err := r.target.SwapPhases(cfg.Workflow.PhaseDefinitions()); err != nil {
		return nil, fmt.Errorf("phase definitions rejected: %w", err)
	}
	r.target.SwapRules(cfg.Workflow.AuthorizationRules())

	r.current = cfg
	r.applied++
	r.logger.Info("workflow configuration applied",
		zap.Int("phases", len(cfg.Workflow.Phases)),
		zap.Int("rules", len(cfg.Workflow.Rules)),
		zap.Int("generation", r.applied))
	return cfg, nil
}

// Current returns the last applied configuration, or nil before Start.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Generation returns how many configurations have been applied.
func (r *Reloader) Generation() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.applied
}
