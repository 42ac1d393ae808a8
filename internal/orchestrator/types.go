// Package orchestrator implements component M: the provider registry that
// owns every long-running HTTP server's lifecycle, in the style of the
// teacher's system/core LifecycleManager — dependency-ordered start with
// reverse-order rollback on failure, reverse-order stop, and bind-before-
// proceed polling so that late-bound cross-service wiring (the event
// propagation fabric's queue poller, for instance) can run safely between
// two providers' starts.
package orchestrator

import (
	"context"
	"time"
)

// Status is a provider's current lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusStarting Status = "starting"
	StatusRunning Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// Provider is one long-running unit the orchestrator manages: typically one
// service's HTTP server bound to its dedicated port.
type Provider interface {
	// ID is the opaque identifier the orchestrator keys providers by.
	ID() string
	// Start brings the provider up; it must not return until the provider
	// has bound its listener (or otherwise become ready to serve), or ctx
	// is cancelled / the bind timeout elapses.
	Start(ctx context.Context) error
	// Stop tears the provider down, releasing its listener.
	Stop(ctx context.Context) error
	// Healthy reports whether the provider is currently serving correctly.
	Healthy() bool
}

// Health is a snapshot of one provider's lifecycle state for the management
// surface's /_ldk/status endpoint.
type Health struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
}
