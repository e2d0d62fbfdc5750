package connwatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// scripted runs a watcher synchronously against a fixed sequence of
// probe results, recording every wait instead of sleeping.
func scripted(t *testing.T, results []error, cfg Config) (*Watcher, []time.Duration) {
	t.Helper()

	var calls int
	cfg.Name = "tools"
	cfg.Probe = func(context.Context) error {
		err := results[calls]
		calls++
		return err
	}
	w, err := newWatcher(cfg)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}

	var waits []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return len(waits) < len(results)
	}
	w.run(context.Background())
	return w, waits
}

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()
	if cfg.InitialDelay != time.Second || cfg.MaxDelay != time.Minute || cfg.PollInterval != 30*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if got := (BackoffConfig{Multiplier: 0.5}).withDefaults(); got != cfg {
		t.Errorf("withDefaults = %+v, want %+v", got, cfg)
	}
}

func TestWatcher_BackoffAndTransitions(t *testing.T) {
	down := errors.New("connection refused")
	var ready, lost int
	var lostErr error

	w, waits := scripted(t,
		[]error{down, down, down, down, nil, nil, down},
		Config{
			Backoff: BackoffConfig{
				InitialDelay: time.Second,
				MaxDelay:     4 * time.Second,
				Multiplier:   2,
				PollInterval: 30 * time.Second,
			},
			OnReady: func() { ready++ },
			OnDown:  func(err error) { lost++; lostErr = err },
		})

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second,
		30 * time.Second, 30 * time.Second,
		time.Second,
	}
	if diff := cmp.Diff(want, waits); diff != "" {
		t.Errorf("waits mismatch (-want +got):\n%s", diff)
	}
	if ready != 1 || lost != 1 {
		t.Errorf("OnReady/OnDown = %d/%d, want 1/1", ready, lost)
	}
	if !errors.Is(lostErr, down) {
		t.Errorf("OnDown err = %v", lostErr)
	}

	st := w.Status()
	if st.Ready || st.Failures != 1 || st.LastError != "connection refused" || st.Name != "tools" {
		t.Errorf("status = %+v", st)
	}
}

func TestWatcher_NoDownCallbackBeforeFirstSuccess(t *testing.T) {
	var lost int
	w, _ := scripted(t, []error{errors.New("x"), errors.New("y")}, Config{
		OnDown: func(error) { lost++ },
	})
	if lost != 0 {
		t.Errorf("OnDown called %d times before the service was ever ready", lost)
	}
	if st := w.Status(); st.Failures != 2 || st.LastError != "y" {
		t.Errorf("status = %+v", st)
	}
}

func TestWatcher_ProbeTimeout(t *testing.T) {
	w, err := newWatcher(Config{
		Name: "slow",
		Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Backoff: BackoffConfig{ProbeTimeout: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.check(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("check = %v, want deadline exceeded", err)
	}
	if w.Ready() {
		t.Error("timed-out probe must not count as ready")
	}
}

func TestWatch_StartsAndStops(t *testing.T) {
	var probes atomic.Int32
	readyCh := make(chan struct{}, 1)

	w, err := Watch(context.Background(), Config{
		Name:    "tools",
		Probe:   func(context.Context) error { probes.Add(1); return nil },
		Backoff: BackoffConfig{PollInterval: time.Millisecond},
		OnReady: func() { readyCh <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	select {
	case <-readyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("OnReady not called")
	}
	w.Stop()

	if !w.Ready() {
		t.Error("expected ready")
	}
	n := probes.Load()
	time.Sleep(10 * time.Millisecond)
	if probes.Load() != n {
		t.Error("probes continued after Stop")
	}
}

func TestWatch_Validation(t *testing.T) {
	probe := func(context.Context) error { return nil }
	if _, err := Watch(context.Background(), Config{Probe: probe}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := Watch(context.Background(), Config{Name: "x"}); err == nil {
		t.Error("expected error for nil probe")
	}
}
