package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/shamir-custody/common"
	"github.com/ruteri/shamir-custody/metrics"
	"go.uber.org/atomic"
)

type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// RouteRegistrar is implemented by API handlers mounted on the server.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Server serves the custody API next to the probe endpoints. Metrics run on
// their own listener.
type Server struct {
	cfg   *HTTPServerConfig
	log   *slog.Logger
	ready atomic.Bool

	api     *http.Server
	metrics *metrics.MetricsServer
}

func New(cfg *HTTPServerConfig, routes ...RouteRegistrar) (*Server, error) {
	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:     cfg,
		log:     cfg.Log,
		metrics: metricsSrv,
	}
	srv.ready.Store(true)

	srv.api = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.router(routes),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

// Handler returns the root handler, mainly for tests.
func (srv *Server) Handler() http.Handler {
	return srv.api.Handler
}

func (srv *Server) router(routes []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return httplogger.LoggingMiddlewareSlog(srv.log, next)
		})

		for _, rr := range routes {
			rr.RegisterRoutes(r)
		}

		r.Get("/livez", srv.handleLivez)
		r.Get("/readyz", srv.handleReadyz)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"` + status + `"}`))
}

func (srv *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (srv *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !srv.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

// handleDrain flips readiness off and returns at once. The drain period only
// bounds how long load balancers are given to notice.
func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.ready.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}

	srv.log.Info("Server marked as not ready", "drain", srv.cfg.DrainDuration)
	time.AfterFunc(srv.cfg.DrainDuration, func() {
		srv.log.Info("Drain period completed")
	})
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.ready.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}

	srv.log.Info("Server marked as ready")
	writeStatus(w, http.StatusOK, "ready")
}

// RunInBackground starts the API listener and, when MetricsAddr is set, the
// metrics listener.
func (srv *Server) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go srv.serve("metrics", srv.cfg.MetricsAddr, srv.metrics.ListenAndServe)
	}
	go srv.serve("api", srv.cfg.ListenAddr, srv.api.ListenAndServe)
}

func (srv *Server) serve(name, addr string, listen func() error) {
	srv.log.Info("Starting HTTP server", "server", name, "listenAddress", addr)
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		srv.log.Error("HTTP server failed", "server", name, "err", err)
	}
}

// Shutdown stops the API listener, then the metrics listener.
func (srv *Server) Shutdown() {
	srv.stop("api", srv.api.Shutdown)
	if srv.cfg.MetricsAddr != "" {
		srv.stop("metrics", srv.metrics.Shutdown)
	}
}

func (srv *Server) stop(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		srv.log.Error("Graceful shutdown failed", "server", name, "err", err)
		return
	}
	srv.log.Info("HTTP server gracefully stopped", "server", name)
}
