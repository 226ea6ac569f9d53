// Package httptransport assembles the HTTP surface: common middleware,
// operational endpoints and the domain routes.
package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registrar mounts a set of domain routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires the operational endpoints and every domain registrar.
// Authentication is applied per domain, not globally, so /healthz and
// /metrics stay reachable by probes.
func NewRouter(registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, registrar := range registrars {
		registrar.Register(r)
	}
	return r
}
