// Package health exposes liveness and readiness probes for a running
// pipeline. Readiness degrades when the export path is failing or the
// event queue is saturated; liveness only fails once shutdown begins.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the reported state of the pipeline or one of its components.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// ComponentCheck is the health of a single component.
type ComponentCheck struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body returned by probe endpoints.
type Response struct {
	Status     Status                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
	Timestamp  string                    `json:"timestamp"`
}

// CheckFunc returns nil when the component is healthy.
type CheckFunc func() error

// Checker serves /live and /ready for a pipeline.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	shuttingDown atomic.Bool
}

// New creates an empty Checker.
func New() *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
	}
}

// Register adds a named readiness check, called on every /ready request.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// SetShuttingDown marks the instance as shutting down. Both probes report
// down afterwards, so load balancers drain before the pipeline stops.
func (c *Checker) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// QueueSaturationCheck reports unhealthy when the queue depth exceeds the
// given fraction of its capacity.
func QueueSaturationCheck(depth func() (int, int), threshold float64) CheckFunc {
	return func() error {
		d, capacity := depth()
		if capacity <= 0 {
			return nil
		}
		if frac := float64(d) / float64(capacity); frac >= threshold {
			return fmt.Errorf("queue %.0f%% full (%d/%d)", frac*100, d, capacity)
		}
		return nil
	}
}

// LiveHandler serves the liveness probe.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			writeJSON(w, http.StatusServiceUnavailable, shutdownResponse())
			return
		}
		writeJSON(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: timestamp(),
		})
	}
}

// ReadyHandler serves the readiness probe, running every registered check.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			writeJSON(w, http.StatusServiceUnavailable, shutdownResponse())
			return
		}

		c.mu.RLock()
		checks := make(map[string]CheckFunc, len(c.checks))
		for name, check := range c.checks {
			checks[name] = check
		}
		c.mu.RUnlock()

		overall := StatusUp
		components := make(map[string]ComponentCheck, len(checks))
		for name, check := range checks {
			if err := check(); err != nil {
				overall = StatusDown
				components[name] = ComponentCheck{Status: StatusDown, Message: err.Error()}
			} else {
				components[name] = ComponentCheck{Status: StatusUp}
			}
		}

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, Response{
			Status:     overall,
			Components: components,
			Timestamp:  timestamp(),
		})
	}
}

func shutdownResponse() Response {
	return Response{
		Status:    StatusDown,
		Timestamp: timestamp(),
		Components: map[string]ComponentCheck{
			"pipeline": {Status: StatusDown, Message: "shutting down"},
		},
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
