package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// dependencyCheck pings one backing service. Required checks turn the
// readiness status into "error"; optional ones only degrade it.
type dependencyCheck struct {
	name     string
	required bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []dependencyCheck
	env     string
	version string
}

func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		checks: []dependencyCheck{
			{name: "postgres", required: true, ping: pgPool.Ping},
			{name: "redis", required: true, ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		env:     env,
		version: version,
	}
}

// WithCheck registers an optional dependency such as the mail broker.
func (h *HealthHandler) WithCheck(name string, ping func(ctx context.Context) error) *HealthHandler {
	h.checks = append(h.checks, dependencyCheck{name: name, ping: ping})
	return h
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	status := "ok"

	for _, c := range h.checks {
		checkCtx, checkCancel := context.WithTimeout(ctx, time.Second)
		err := c.ping(checkCtx)
		checkCancel()
		if err == nil {
			deps[c.name] = "ok"
			continue
		}
		deps[c.name] = "down"
		switch {
		case c.required:
			status = "error"
		case status == "ok":
			status = "degraded"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
