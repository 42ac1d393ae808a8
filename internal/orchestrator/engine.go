package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/local-web-services/ldk/internal/logging"
)

// Registry owns every provider keyed by its opaque id, and runs them
// through the fixed start/stop lifecycle the caller declares via order.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	health    map[string]*Health
	started   []string // ids, in the order they were successfully started
	log       *logging.Logger

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New creates an empty registry. Call Register for each provider before
// Start.
func New(log *logging.Logger) *Registry {
	return &Registry{
		providers:  make(map[string]Provider),
		health:     make(map[string]*Health),
		log:        log,
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a provider to the set, in pending state, ready to be named
// in a Start order.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	r.health[p.ID()] = &Health{ID: p.ID(), Status: StatusPending}
}

// bindTimeout bounds how long Start waits for one provider to report ready.
const bindTimeout = 5 * time.Second

// Start brings every provider named in order up in sequence. If any
// provider fails to start, every already-started provider is stopped in
// reverse order and the error is returned. onStarted, if non-nil, is
// invoked synchronously right after each provider binds — this is the hook
// late-bind cross-service wiring (e.g. injecting the compute registry into
// the messaging provider once it exists but before the next provider in
// order starts) attaches to.
func (r *Registry) Start(ctx context.Context, order []string, onStarted func(id string)) error {
	for _, id := range order {
		r.mu.RLock()
		p, ok := r.providers[id]
		r.mu.RUnlock()
		if !ok {
			err := fmt.Errorf("orchestrator: unknown provider %q in start order", id)
			r.rollback(ctx)
			return err
		}

		r.setStatus(id, StatusStarting, "")
		startCtx, cancel := context.WithTimeout(ctx, bindTimeout)
		err := p.Start(startCtx)
		cancel()
		if err != nil {
			r.setStatus(id, StatusFailed, err.Error())
			r.rollback(ctx)
			return fmt.Errorf("start %s: %w", id, err)
		}

		r.mu.Lock()
		r.started = append(r.started, id)
		r.mu.Unlock()
		r.setStatus(id, StatusRunning, "")
		if r.log != nil {
			r.log.WithContext(ctx).WithField("provider", id).Info("provider started")
		}
		if onStarted != nil {
			onStarted(id)
		}
	}
	return nil
}

// rollback stops every successfully-started provider in reverse order,
// used both on start failure and on explicit Stop.
func (r *Registry) rollback(ctx context.Context) {
	r.mu.Lock()
	started := append([]string(nil), r.started...)
	r.started = nil
	r.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		id := started[i]
		r.mu.RLock()
		p := r.providers[id]
		r.mu.RUnlock()
		r.setStatus(id, StatusStopping, "")
		if err := p.Stop(ctx); err != nil {
			r.setStatus(id, StatusFailed, err.Error())
			if r.log != nil {
				r.log.WithContext(ctx).WithField("provider", id).WithField("error", err.Error()).Warn("provider stop failed during rollback")
			}
			continue
		}
		r.setStatus(id, StatusStopped, "")
	}
}

// Stop tears down every running provider in reverse start order.
func (r *Registry) Stop(ctx context.Context) error {
	r.rollback(ctx)
	return nil
}

// WaitForShutdown blocks until an OS interrupt/terminate signal arrives or
// Shutdown is called explicitly, then returns.
func (r *Registry) WaitForShutdown(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-r.shutdownCh:
	case <-ctx.Done():
	}
}

// Shutdown triggers an explicit (non-signal) shutdown, for tests and the
// management surface's reset/shutdown hooks.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(func() { close(r.shutdownCh) })
}

// HealthSnapshot returns every provider's current lifecycle health.
func (r *Registry) HealthSnapshot() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Health, 0, len(r.health))
	for _, h := range r.health {
		out = append(out, *h)
	}
	return out
}

func (r *Registry) setStatus(id string, status Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.health[id]
	if !ok {
		h = &Health{ID: id}
		r.health[id] = h
	}
	h.Status = status
	h.Error = errMsg
	switch status {
	case StatusRunning:
		h.StartedAt = time.Now()
	case StatusStopped:
		h.StoppedAt = time.Now()
	}
}
