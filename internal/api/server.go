// Package api exposes the proxy actions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleproxy/internal/groutine"
	"github.com/srg/bleproxy/internal/proxy"
)

// Radio is the toggle triggered by the enable and disable actions.
type Radio interface {
	SetEnabled(ctx context.Context, enabled bool)
}

// Devices provides the device list.
type Devices interface {
	Snapshot() []proxy.DeviceSnapshot
}

// Connectivity reports broker reachability for the health check.
type Connectivity interface {
	IsConnected() bool
}

// Server serves:
//
//	POST /api/v1/radio/enable
//	POST /api/v1/radio/disable
//	GET  /api/v1/devices
//	GET  /healthz
type Server struct {
	radio   Radio
	devices Devices
	conn    Connectivity
	logger  *logrus.Logger
	router  chi.Router

	// actions outlive the request that triggered them
	actionCtx context.Context
}

func NewServer(ctx context.Context, radio Radio, devices Devices, conn Connectivity, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		radio:     radio,
		devices:   devices,
		conn:      conn,
		logger:    logger,
		actionCtx: ctx,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/radio/enable", s.radioAction(true))
		r.Post("/radio/disable", s.radioAction(false))
		r.Get("/devices", s.listDevices)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := groutine.Go(ctx, "api-shutdown", func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	s.logger.WithField("addr", addr).Info("API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}

func (s *Server) radioAction(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		groutine.Go(s.actionCtx, "radio-action", func(ctx context.Context) error {
			s.radio.SetEnabled(ctx, enabled)
			return nil
		})
		jsonResponse(w, http.StatusAccepted, map[string]interface{}{
			"status":  "accepted",
			"enabled": enabled,
		})
	}
}

func (s *Server) listDevices(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, s.devices.Snapshot())
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.conn.IsConnected() {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "degraded", "mqtt": "disconnected"})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"status": "ok", "mqtt": "connected"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("HTTP request")
	})
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
