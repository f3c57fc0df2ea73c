package httpobs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/sentineldock/acpgate/internal/adapter/outbound/agentproc"
	"github.com/sentineldock/acpgate/internal/adapter/outbound/memory"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies component health. Pass nil for any component not
// wired in the running configuration.
type HealthChecker struct {
	sessionStore *memory.MemorySessionStore
	rateLimiter  *memory.MemoryRateLimiter
	supervisor   *agentproc.Supervisor
	version      string
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(
	sessionStore *memory.MemorySessionStore,
	rateLimiter *memory.MemoryRateLimiter,
	supervisor *agentproc.Supervisor,
	version string,
) *HealthChecker {
	return &HealthChecker{
		sessionStore: sessionStore,
		rateLimiter:  rateLimiter,
		supervisor:   supervisor,
		version:      version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)

	if h.sessionStore != nil {
		checks["session_store"] = fmt.Sprintf("ok: %d sessions", h.sessionStore.Size())
	} else {
		checks["session_store"] = "not configured"
	}

	if h.rateLimiter != nil {
		checks["rate_limiter"] = fmt.Sprintf("ok: %d keys", h.rateLimiter.Size())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.supervisor != nil {
		checks["agent_subprocesses"] = fmt.Sprintf("ok: %d running", h.supervisor.Count())
	} else {
		checks["agent_subprocesses"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	return HealthResponse{
		Status:  "healthy",
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(health)
	})
}
