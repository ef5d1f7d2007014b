// Package api serves metadata lookups, pool state and metrics over HTTP.
// Every request borrows one repository from the pool of its database for
// the duration of the lookup.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oriys/fmidb/internal/cache"
	"github.com/oriys/fmidb/internal/circuitbreaker"
	"github.com/oriys/fmidb/internal/cldb"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/metrics"
	"github.com/oriys/fmidb/internal/neons"
	"github.com/oriys/fmidb/internal/observability"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/radon"
	"github.com/oriys/fmidb/internal/verif"
)

// Pools holds the repository pools served. A nil pool disables the routes
// of its database.
type Pools struct {
	Radon *pool.Pool[*radon.Repository]
	Neons *pool.Pool[*neons.Repository]
	CLDB  *pool.Pool[*cldb.Repository]
	Verif *pool.Pool[*verif.Repository]
}

// Handler handles lookup API requests.
type Handler struct {
	Pools Pools
	// Shared is pinged by the readiness check when set.
	Shared cache.Cache
	// Timeout bounds each request. Zero means no limit.
	Timeout time.Duration
}

var errNotConfigured = errors.New("database not configured")

// Router returns the routes of the lookup API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.Timeout > 0 {
		r.Use(middleware.Timeout(h.Timeout))
	}
	r.Use(observability.HTTPMiddleware)

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/v1/stats", h.Stats)

	r.Route("/v1/radon", h.radonRoutes)
	r.Route("/v1/neons", h.neonsRoutes)
	r.Route("/v1/cldb", h.cldbRoutes)
	r.Route("/v1/verif", h.verifRoutes)
	return r
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Shared != nil {
		if err := h.Shared.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "cache": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var pools []pool.Stats
	if h.Pools.Radon != nil {
		pools = append(pools, h.Pools.Radon.Stats())
	}
	if h.Pools.Neons != nil {
		pools = append(pools, h.Pools.Neons.Stats())
	}
	if h.Pools.CLDB != nil {
		pools = append(pools, h.Pools.CLDB.Stats())
	}
	if h.Pools.Verif != nil {
		pools = append(pools, h.Pools.Verif.Stats())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pools":    pools,
		"counters": metrics.Global().Snapshot(),
	})
}

// borrow runs fn on a repository of p and writes its result. An empty
// attribute map is reported as 404.
func borrow[R pool.Resource](w http.ResponseWriter, r *http.Request, p *pool.Pool[R], fn func(ctx context.Context, repo R) (any, error)) {
	if p == nil {
		writeError(w, http.StatusNotFound, errNotConfigured)
		return
	}
	ctx := r.Context()
	var out any
	err := p.Do(ctx, func(repo R) error {
		var err error
		out, err = fn(ctx, repo)
		return err
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logging.Op().Error("lookup failed", "pool", p.Name(), "path", r.URL.Path, "error", err)
		}
		writeError(w, status, err)
		return
	}
	if m, ok := out.(domain.AttributeMap); ok && !m.Found() {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrUnsupportedNetwork),
		errors.Is(err, domain.ErrUnsupportedProjection),
		errors.Is(err, domain.ErrUnsupportedProducer),
		errors.Is(err, domain.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrTimeout), errors.Is(err, pool.ErrClosed), errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
