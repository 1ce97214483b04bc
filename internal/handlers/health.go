package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// BuildInfo captures runtime metadata exposed via the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build     BuildInfo
	readiness func(ctx context.Context) error
	clock     func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata reported by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthReadiness sets the probe executed by /readyz, typically a
// connectivity check against the backing stores.
func WithHealthReadiness(probe func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = probe
	}
}

// WithHealthClock overrides the time source, used by tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		build: BuildInfo{StartedAt: time.Now()},
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports liveness along with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeHealthJSON(w, http.StatusOK, payload)
}

// Readyz reports readiness by probing backing dependencies. Without a probe
// configured it mirrors the liveness response.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	if h.readiness == nil {
		writeHealthJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": now.UTC().Format(time.RFC3339),
		})
		return
	}

	if err := h.readiness(r.Context()); err != nil {
		writeHealthJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "degraded",
			"timestamp": now.UTC().Format(time.RFC3339),
			"details":   []string{err.Error()},
		})
		return
	}

	writeHealthJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

func writeHealthJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
