package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRunning is reported when Start is called while a loop is
// already active.
var ErrAlreadyRunning = errors.New("keep-alive loop already running")

// Keep-alive timing.
const (
	// MinKeepAliveInterval is the floor for the pause between passes.
	MinKeepAliveInterval = 5 * time.Minute

	// defaultSleepChunk bounds how long a stop request can go unnoticed
	// while the loop is sleeping between passes.
	defaultSleepChunk = 5 * time.Second
)

// PassRunner is the scheduler surface the keep-alive loop drives.
type PassRunner interface {
	RunPass(ctx context.Context) error
}

// KeepAliveStatus is a point-in-time view of the loop.
type KeepAliveStatus struct {
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// KeepAlive repeatedly invokes the scheduler on an interval. Exactly
// one loop may run; stopping is cooperative and waits for the in-flight
// pass to finish.
type KeepAlive struct {
	runner   PassRunner
	interval time.Duration
	chunk    time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	runs    int
	lastRun time.Time
	lastErr error
}

// NewKeepAlive creates a stopped loop. Intervals below the floor are
// raised to it.
func NewKeepAlive(runner PassRunner, interval time.Duration, logger *slog.Logger) *KeepAlive {
	if interval < MinKeepAliveInterval {
		interval = MinKeepAliveInterval
	}
	return &KeepAlive{
		runner:   runner,
		interval: interval,
		chunk:    defaultSleepChunk,
		logger:   logger.With("component", "keep_alive"),
	}
}

// Start launches the loop. A second start reports ErrAlreadyRunning
// without starting a duplicate.
func (k *KeepAlive) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return ErrAlreadyRunning
	}
	k.running = true
	k.stop = make(chan struct{})
	k.done = make(chan struct{})

	go k.loop(k.stop, k.done)
	k.logger.Info("keep-alive loop started", "interval", k.interval)
	return nil
}

// Stop requests a cooperative stop and waits for the in-flight pass to
// finish. Stopping an already stopped loop is a no-op.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	stop, done := k.stop, k.done
	k.mu.Unlock()

	close(stop)
	<-done

	k.mu.Lock()
	k.running = false
	k.mu.Unlock()
	k.logger.Info("keep-alive loop stopped")
}

// Status reports the loop's current state.
func (k *KeepAlive) Status() KeepAliveStatus {
	k.mu.Lock()
	defer k.mu.Unlock()

	status := KeepAliveStatus{
		Running: k.running,
		Runs:    k.runs,
		LastRun: k.lastRun,
	}
	if k.lastErr != nil {
		status.LastError = k.lastErr.Error()
	}
	return status
}

func (k *KeepAlive) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// The in-flight pass always runs to completion. Cancelling it would
	// strand a claimed job in running with no terminal transition, which
	// also blocks its owner from ever enqueueing again.
	ctx := context.Background()

	for {
		err := k.runner.RunPass(ctx)

		k.mu.Lock()
		k.runs++
		k.lastRun = time.Now().UTC()
		k.lastErr = err
		k.mu.Unlock()

		if err != nil {
			k.logger.Error("scheduler pass failed", "error", err)
		}

		if !k.sleep(stop) {
			return
		}
	}
}

// sleep pauses for the interval in small chunks so a stop request is
// honored within one chunk. Returns false when stopped.
func (k *KeepAlive) sleep(stop <-chan struct{}) bool {
	remaining := k.interval
	for remaining > 0 {
		chunk := k.chunk
		if chunk > remaining {
			chunk = remaining
		}
		select {
		case <-stop:
			return false
		case <-time.After(chunk):
			remaining -= chunk
		}
	}
	return true
}
