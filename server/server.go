// Package server hosts the operational HTTP surface of the instance:
// a liveness endpoint and the Prometheus metrics handler.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemosyne/ai/metrics"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

// NewServer wires the echo instance with request logging and the ops routes.
// The exporter may be nil, in which case /metrics is not registered.
func NewServer(_ context.Context, profile *profile.Profile, store *store.Store, exporter *metrics.PrometheusExporter) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	s.echoServer = echoServer

	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				slog.Warn("http request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"error", v.Error,
				)
				return nil
			}
			slog.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	}))
	echoServer.Use(middleware.Recover())

	echoServer.GET("/healthz", s.healthz)
	if exporter != nil {
		echoServer.GET("/metrics", echo.WrapHandler(exporter.GetHandler()))
	}

	return s, nil
}

// Start binds the listener and serves in the background. Serve errors after a
// successful bind are logged, not returned.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}

	go func() {
		if err := s.echoServer.Server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the HTTP server, then closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}

	slog.Info("server stopped")
}

func (s *Server) GetEcho() *echo.Echo {
	return s.echoServer
}

type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
	Driver  string `json:"driver"`
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, &healthStatus{
		Status:  "ok",
		Version: s.Profile.Version,
		Mode:    s.Profile.Mode,
		Driver:  s.Profile.Driver,
	})
}
