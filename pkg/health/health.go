// Package health tracks service readiness and exposes liveness and
// readiness probe handlers.
package health

import (
	"net/http"
	"sync/atomic"

	"github.com/txn2/secure-agent/pkg/httpapi"
)

// Readiness states. A service starts in Starting, moves to Ready once its
// dependencies (key set cache, stores) are wired, and to Draining when
// shutdown begins.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks the readiness state of a service.
// It is safe for concurrent use.
type Checker struct {
	version string
	state   atomic.Int32
}

// NewChecker creates a Checker in the Starting state. The version is
// reported by the liveness endpoint.
func NewChecker(version string) *Checker {
	return &Checker{version: version}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state. Readiness probes fail from
// here on so the load balancer stops routing new requests during shutdown.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// statusResponse is the JSON body returned by probe endpoints.
type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok", Version: c.version})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and 503 when starting or draining.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		if !c.IsReady() {
			status = http.StatusServiceUnavailable
		}
		httpapi.WriteJSON(w, status, statusResponse{Status: c.State()})
	}
}
