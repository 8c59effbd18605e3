// Package httpserver exposes the auxiliary liveness and metrics endpoints.
// Hosting platforms probe GET / or /healthz; everything else the bot does
// goes through the Discord gateway, not HTTP.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds an HTTP server with sane defaults for this project.
func New(addr string) *http.Server {
	r := chi.NewRouter()
	r.Get("/", handleHealth)
	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
