// Package connwatch monitors a long-lived tool server connection.
//
// A Watcher probes the service on a fixed interval while it is healthy
// and with exponential backoff while it is not, reporting transitions
// through OnReady and OnDown. `briefer serve` uses it to reconnect its
// session after the tool server restarts and to report tool server
// health on /healthz.
package connwatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// BackoffConfig controls retry timing.
type BackoffConfig struct {
	// InitialDelay is the first retry delay after a failed probe (default: 1s).
	InitialDelay time.Duration

	// MaxDelay caps backoff growth (default: 60s).
	MaxDelay time.Duration

	// Multiplier scales the delay after each failure (default: 2.0).
	Multiplier float64

	// PollInterval is the delay between probes while healthy (default: 30s).
	PollInterval time.Duration

	// ProbeTimeout bounds each probe (default: 10s).
	ProbeTimeout time.Duration
}

// DefaultBackoffConfig returns 1s, 2s, 4s, ... capped at 60s, with
// 30-second polling.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		PollInterval: 30 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (b BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// Config configures a Watcher.
type Config struct {
	// Name identifies the service in logs and status.
	Name  string
	Probe ProbeFunc

	// Backoff zero fields take their defaults.
	Backoff BackoffConfig

	// OnReady runs after a probe succeeds following a failure or at
	// startup. OnDown runs after a probe fails while ready. Both run on
	// the watcher goroutine and must not block for long. Optional.
	OnReady func()
	OnDown  func(err error)

	Logger *slog.Logger
}

// Status is the health of a watched service as reported on /healthz.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Failures  int       `json:"consecutive_failures,omitempty"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors one service until its context ends or Stop is called.
type Watcher struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	// now and sleep are swapped in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	mu        sync.Mutex
	ready     bool
	failures  int
	lastErr   error
	lastCheck time.Time
}

// Watch starts a Watcher probing immediately.
func Watch(ctx context.Context, cfg Config) (*Watcher, error) {
	w, err := newWatcher(cfg)
	if err != nil {
		return nil, err
	}
	w.start(ctx)
	return w, nil
}

func newWatcher(cfg Config) (*Watcher, error) {
	if cfg.Name == "" {
		return nil, errors.New("connwatch: name must not be empty")
	}
	if cfg.Probe == nil {
		return nil, errors.New("connwatch: probe must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Backoff = cfg.Backoff.withDefaults()
	return &Watcher{
		cfg:   cfg,
		done:  make(chan struct{}),
		now:   time.Now,
		sleep: sleepCtx,
	}, nil
}

func (w *Watcher) start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Ready reports whether the last probe succeeded.
func (w *Watcher) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Status returns a snapshot of the watcher's state.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{
		Name:      w.cfg.Name,
		Ready:     w.ready,
		Failures:  w.failures,
		LastCheck: w.lastCheck,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.cfg.Backoff.InitialDelay
	for {
		err := w.check(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := w.cfg.Backoff.PollInterval
		if err != nil {
			wait = delay
			delay = min(time.Duration(float64(delay)*w.cfg.Backoff.Multiplier), w.cfg.Backoff.MaxDelay)
		} else {
			delay = w.cfg.Backoff.InitialDelay
		}

		if !w.sleep(ctx, wait) {
			return
		}
	}
}

// check runs one probe and fires the transition callback, if any.
func (w *Watcher) check(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.Backoff.ProbeTimeout)
	err := w.cfg.Probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	w.mu.Lock()
	wasReady := w.ready
	first := w.lastCheck.IsZero()
	w.lastCheck = w.now()
	w.lastErr = err
	w.ready = err == nil
	if err != nil {
		w.failures++
	} else {
		w.failures = 0
	}
	failures := w.failures
	w.mu.Unlock()

	logger := w.cfg.Logger
	switch {
	case err == nil && !wasReady:
		if first {
			logger.Info("service connected", "service", w.cfg.Name)
		} else {
			logger.Info("service recovered", "service", w.cfg.Name)
		}
		if w.cfg.OnReady != nil {
			w.cfg.OnReady()
		}
	case err != nil && wasReady:
		logger.Warn("service became unreachable", "service", w.cfg.Name, "error", err)
		if w.cfg.OnDown != nil {
			w.cfg.OnDown(err)
		}
	case err != nil:
		logger.Debug("service still unreachable",
			"service", w.cfg.Name,
			"failures", failures,
			"error", err,
		)
	}
	return err
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
