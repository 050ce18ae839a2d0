package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"code-relay-backend/internal/queue"
	"code-relay-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type ServerConfig struct {
	ListenAddr string
	Queue      *queue.RequestQueueManager
	Handler    *websocket.Handler
	StaticDir  string
	// Registry defaults to the process-wide Prometheus registry.
	Registry *prometheus.Registry
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	handler             *websocket.Handler
	staticDir           string
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
}

func NewAPIServer(cfg ServerConfig, registrars ...RouteRegistrar) *APIServer {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
	}

	return &APIServer{
		listenAddr:          cfg.ListenAddr,
		requestQueueManager: cfg.Queue,
		handler:             cfg.Handler,
		staticDir:           cfg.StaticDir,
		routeRegistrars:     registrars,
		metrics:             newMetrics(reg, gatherer, cfg.ListenAddr, cfg.Queue),
	}
}

// Routes builds the instrumented mux with /metrics and every registrar's routes.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.metricsHandler())

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	slog.Info("server listening", "addr", s.listenAddr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("server shutting down", "addr", s.listenAddr)
	return srv.Shutdown(shutdownCtx)
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.handler
}

func (s *APIServer) StaticDir() string {
	return s.staticDir
}
