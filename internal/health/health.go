// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; returns 200 while every [Heartbeat] is fresh.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "prefs",
	// "device"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Heartbeat tracks the last time a loop made progress. The engine loop calls
// [Heartbeat.Beat] once per tick; a stale heartbeat fails liveness.
type Heartbeat struct {
	name   string
	maxAge time.Duration
	now    func() time.Time
	last   atomic.Int64 // unix nanos; 0 until the first beat
}

// NewHeartbeat returns a heartbeat that goes stale after maxAge without a
// beat. A heartbeat that never beat is not stale, so liveness holds during
// startup.
func NewHeartbeat(name string, maxAge time.Duration) *Heartbeat {
	return &Heartbeat{name: name, maxAge: maxAge, now: time.Now}
}

// Beat records progress.
func (b *Heartbeat) Beat() {
	b.last.Store(b.now().UnixNano())
}

// Check implements a [Checker] function.
func (b *Heartbeat) Check(context.Context) error {
	last := b.last.Load()
	if last == 0 {
		return nil
	}
	if age := b.now().Sub(time.Unix(0, last)); age > b.maxAge {
		return fmt.Errorf("%s stalled for %s", b.name, age.Round(time.Millisecond))
	}
	return nil
}

// Checker returns b as a named [Checker].
func (b *Heartbeat) Checker() Checker {
	return Checker{Name: b.name, Check: b.Check}
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker lists are fixed at construction time.
type Handler struct {
	checkers []Checker
	live     []*Heartbeat
}

// Option configures a [Handler].
type Option func(*Handler)

// WithHeartbeat makes /healthz fail while b is stale.
func WithHeartbeat(b *Heartbeat) Option {
	return func(h *Handler) { h.live = append(h.live, b) }
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers run concurrently; each result is keyed by name.
func New(checkers []Checker, opts ...Option) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	h := &Handler{checkers: c}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is a liveness probe. A running process that can serve HTTP and
// whose heartbeats are fresh is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if len(h.live) == 0 {
		writeJSON(w, http.StatusOK, result{Status: "ok"})
		return
	}
	checks := make([]Checker, len(h.live))
	for i, b := range h.live {
		checks[i] = b.Checker()
	}
	res, status := run(r.Context(), checks)
	writeJSON(w, status, res)
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res, status := run(r.Context(), h.checkers)
	writeJSON(w, status, res)
}

// run evaluates checkers concurrently. A failing check never cancels the
// others.
func run(ctx context.Context, checkers []Checker) (result, int) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(checkers))
		allOK  = true
		g      errgroup.Group
	)
	for _, c := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			err := c.Check(cctx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	return res, status
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
