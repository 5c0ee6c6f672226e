package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/phasegate/types"
)

// BufferConfig tunes the fail-open buffering decorator.
type BufferConfig struct {
	// MaxPending is the buffer capacity. Appends beyond it fail even under
	// fail-open: unbounded buffering would trade an outage for an OOM.
	MaxPending int `json:"max_pending" yaml:"max_pending"`

	// FlushInterval is how often the background flusher wakes up.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// FlushRate caps flush attempts per second against a recovering sink.
	FlushRate rate.Limit `json:"flush_rate" yaml:"flush_rate"`

	// InitialBackoff and MaxBackoff bound the retry backoff after a failed
	// flush attempt.
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

// DefaultBufferConfig returns conservative buffering defaults.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxPending:     4096,
		FlushInterval:  1 * time.Second,
		FlushRate:      rate.Limit(100),
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Buffered decorates a Sink so Append succeeds while the underlying store is
// unavailable, parking records locally and flushing them when it recovers.
// This is the fail-open availability policy; compliance-sensitive
// deployments should hand the engine the raw sink instead (fail-closed).
type Buffered struct {
	inner  Sink
	cfg    BufferConfig
	logger *zap.Logger

	mu      sync.Mutex
	pending []types.AuditRecord
	backoff time.Duration
	nextTry time.Time

	limiter  *rate.Limiter
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewBuffered wraps inner with local buffering and starts the background
// flusher. Close stops the flusher and makes a final flush attempt.
func NewBuffered(inner Sink, cfg BufferConfig, logger *zap.Logger) *Buffered {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultBufferConfig().MaxPending
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultBufferConfig().FlushInterval
	}
	if cfg.FlushRate <= 0 {
		cfg.FlushRate = DefaultBufferConfig().FlushRate
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultBufferConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultBufferConfig().MaxBackoff
	}

	b := &Buffered{
		inner:   inner,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "audit_buffer")),
		limiter: rate.NewLimiter(cfg.FlushRate, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.flushLoop()
	return b
}

// Append tries the underlying sink first; on failure the record is parked in
// the local buffer. Append only errors when the buffer itself is full.
func (b *Buffered) Append(ctx context.Context, rec types.AuditRecord) error {
	b.mu.Lock()
	blocked := len(b.pending) > 0 || time.Now().Before(b.nextTry)
	b.mu.Unlock()

	if !blocked {
		if err := b.inner.Append(ctx, rec); err == nil {
			return nil
		} else {
			b.logger.Warn("audit append failed, buffering record",
				zap.String("session_id", rec.SessionID),
				zap.Error(err))
			b.noteFailure()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) >= b.cfg.MaxPending {
		return types.NewError(types.ErrAuditUnavailable, "audit buffer full").WithRetryable(true)
	}
	b.pending = append(b.pending, rec)
	return nil
}

// Query merges the underlying sink's records with locally pending ones so a
// buffered record is visible to readers before it is flushed.
func (b *Buffered) Query(ctx context.Context, sessionID string) ([]types.AuditRecord, error) {
	stored, err := b.inner.Query(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	for _, rec := range b.pending {
		if rec.SessionID == sessionID {
			stored = append(stored, rec)
		}
	}
	b.mu.Unlock()
	return stored, nil
}

// Pending returns the number of buffered records.
func (b *Buffered) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush attempts to drain the buffer synchronously.
func (b *Buffered) Flush(ctx context.Context) error {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return nil
		}
		rec := b.pending[0]
		b.mu.Unlock()

		if err := b.inner.Append(ctx, rec); err != nil {
			b.noteFailure()
			return types.NewError(types.ErrAuditUnavailable, "audit flush failed").WithCause(err).WithRetryable(true)
		}

		b.mu.Lock()
		b.pending = b.pending[1:]
		b.backoff = 0
		b.nextTry = time.Time{}
		b.mu.Unlock()
	}
}

// Close stops the flusher, makes a final flush attempt, and closes the
// underlying sink. Records that still cannot be delivered are logged and
// dropped; the error reports how many.
func (b *Buffered) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flushErr := b.Flush(ctx)

	b.mu.Lock()
	remaining := len(b.pending)
	b.mu.Unlock()

	closeErr := b.inner.Close()
	if remaining > 0 {
		b.logger.Error("dropping undelivered audit records on close", zap.Int("count", remaining))
		return types.NewErrorf(types.ErrAuditUnavailable, "%d audit records undelivered at close", remaining).WithCause(flushErr)
	}
	return closeErr
}

func (b *Buffered) noteFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backoff == 0 {
		b.backoff = b.cfg.InitialBackoff
	} else {
		b.backoff *= 2
		if b.backoff > b.cfg.MaxBackoff {
			b.backoff = b.cfg.MaxBackoff
		}
	}
	b.nextTry = time.Now().Add(b.backoff)
}

func (b *Buffered) flushLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		ready := len(b.pending) > 0 && !time.Now().Before(b.nextTry)
		b.mu.Unlock()
		if !ready {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushInterval)
		if err := b.limiter.Wait(ctx); err == nil {
			if err := b.Flush(ctx); err != nil {
				b.logger.Debug("background audit flush failed, will retry", zap.Error(err))
			}
		}
		cancel()
	}
}

var _ Sink = (*Buffered)(nil)
