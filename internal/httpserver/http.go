// Package httpserver exposes the registry's metrics over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GreengageDB/greengage-exporter/internal/log"
)

// Config configures the metrics HTTP server.
type Config struct {
	Addr string
}

// Server serves the Prometheus registry over /metrics.
type Server struct {
	server *http.Server
}

// NewServer builds a Server bound to prom, listening on cfg.Addr.
func NewServer(cfg Config, prom *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/", handleRoot())
	mux.Handle("/metrics", promhttp.HandlerFor(prom, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			IdleTimeout:  10 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Serve starts listening and serving requests; it blocks until the server stops.
func (s *Server) Serve() error {
	log.Infof("http: listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.server.Shutdown(context.Background())
}

func handleRoot() http.Handler {
	const page = `<html>
<head><title>Greengage exporter</title></head>
<body>
Greengage/Postgres metrics exporter.
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(page)); err != nil {
			log.Warnf("http: write root response failed: %s", err)
		}
	})
}
