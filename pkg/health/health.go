// Package health provides Kubernetes-style liveness and readiness probes.
//
// Registered checks run on a shared background ticker. A check flips to
// unhealthy only after three consecutive failures and recovers after one
// success, so a single slow poll does not take the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

const failureThreshold = 3

// check holds the configuration and state of a single registered probe.
// The counters are only touched by the runner goroutine; healthy and lastErr
// are also read by HTTP handlers and use atomics.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
	fails   int
}

func (c *check) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.fn(checkCtx)
	cancel()

	c.lastErr.Store(&err)
	if err != nil {
		c.fails++
		if c.fails >= failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.healthy.Store(true)
}

// Health manages the liveness and readiness checks of a service. The service
// starts not ready; call SetReady(true) once initialization is done and
// SetReady(false) when draining.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates an empty Health instance.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process is
// functioning at all (goroutine count, GC pauses).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, fn))
}

// AddReadinessCheck registers a check that decides whether the service can
// accept traffic (database connectivity, dependencies).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, fn))
}

func newCheck(name string, timeout time.Duration, fn CheckFunc) *check {
	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true)
	return c
}

// Start runs all registered checks immediately and then on every interval
// tick until Stop is called or ctx is cancelled. Register checks before
// calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append(append([]*check{}, h.liveness...), h.readiness...)
	h.mu.Unlock()

	go func() {
		runAll(ctx, checks)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runAll(ctx, checks)
			}
		}
	}()
}

func runAll(ctx context.Context, checks []*check) {
	for _, c := range checks {
		c.run(ctx)
	}
}

// Stop cancels the background runner. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check currently passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	checks := h.readiness
	h.mu.RUnlock()
	for _, c := range checks {
		if !c.healthy.Load() {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while all liveness checks pass, otherwise
// 503 with the failing checks listed.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := h.liveness
	h.mu.RUnlock()
	writeStatus(w, failures(checks))
}

// ReadyEndpoint serves /readyz: 200 while the service is marked ready and all
// readiness checks pass, otherwise 503 with details.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := h.readiness
	h.mu.RUnlock()

	fails := failures(checks)
	if !h.ready.Load() {
		fails["_readiness"] = "service is not ready"
	}
	writeStatus(w, fails)
}

func failures(checks []*check) map[string]string {
	fails := make(map[string]string)
	for _, c := range checks {
		if c.healthy.Load() {
			continue
		}
		msg := "check is unhealthy"
		if p := c.lastErr.Load(); p != nil && *p != nil {
			msg = (*p).Error()
		}
		fails[c.name] = msg
	}
	return fails
}

func writeStatus(w http.ResponseWriter, fails map[string]string) {
	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(fails) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: fails}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
