// Package camera acquires frames from configured sources with retry,
// failover, and per-source health tracking. It supports single-shot, burst,
// and continuous background capture.
package camera

import (
	"context"
	"sync"
	"time"

	"github.com/smarttraffic/trafficd/internal/model"
)

// Source is one camera feed. Grab blocks until a frame is available or the
// context expires; implementations must honor cancellation.
type Source interface {
	ID() int
	Grab(ctx context.Context) (*model.Frame, error)
}

// sourceHealth tracks one source's state machine. Mutated only by the
// manager, under the per-source lock.
type sourceHealth struct {
	mu                  sync.Mutex
	state               model.CameraState
	consecutiveFailures int
	lastFailure         time.Time
}

func newSourceHealth() *sourceHealth {
	return &sourceHealth{state: model.CameraHealthy}
}

// State returns the current health state.
func (h *sourceHealth) State() model.CameraState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// recordSuccess resets the source to healthy. Returns the previous state so
// the caller can report a recovery.
func (h *sourceHealth) recordSuccess() model.CameraState {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.state
	if h.state != model.CameraHealthy && model.ValidCameraTransition(h.state, model.CameraHealthy) {
		h.state = model.CameraHealthy
	}
	h.consecutiveFailures = 0
	return prev
}

// recordFailure registers one exhausted acquire on this source and advances
// the state machine: healthy → degraded immediately, degraded → failed once
// the consecutive-failure threshold is crossed. Returns previous and new
// state.
func (h *sourceHealth) recordFailure(threshold int) (prev, next model.CameraState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev = h.state
	h.consecutiveFailures++
	h.lastFailure = time.Now()

	switch h.state {
	case model.CameraHealthy:
		h.state = model.CameraDegraded
	case model.CameraDegraded:
		if threshold > 0 && h.consecutiveFailures >= threshold {
			h.state = model.CameraFailed
		}
	}
	return prev, h.state
}

// inCooldown reports whether a failed source should still be skipped.
// After the cooldown the source is re-probed; failure is never permanent.
func (h *sourceHealth) inCooldown(cooldown time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != model.CameraFailed {
		return false
	}
	return time.Since(h.lastFailure) < cooldown
}
