package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ServerConfig holds the settings for a metrics Server.
type ServerConfig struct {
	// Addr is the listen address, for example ":9090".
	Addr string

	// Logger is for observability (optional).
	Logger logrus.FieldLogger
}

// Server exposes the process metrics over HTTP for scraping. Embed the
// handler into an existing mux instead when the process already serves HTTP.
type Server struct {
	config  ServerConfig
	httpSrv *http.Server
	errChan chan error
}

// NewServer creates a metrics server. It does not listen until Start.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		config: cfg,
		httpSrv: &http.Server{
			Addr:    cfg.Addr,
			Handler: mux,
		},
		errChan: make(chan error, 1),
	}
}

// Start begins serving in the background and returns immediately. A failure
// to bind surfaces through Err.
func (s *Server) Start() {
	if s.config.Logger != nil {
		s.config.Logger.WithField("addr", s.config.Addr).Info("metrics server listening")
	}
	go func() {
		err := s.httpSrv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		if s.config.Logger != nil {
			s.config.Logger.WithError(err).Error("metrics server failed")
		}
		s.errChan <- err
	}()
}

// Err reports a serve failure without blocking. It returns nil while the
// server is healthy.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown stops the server, waiting for in-flight scrapes up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.Logger != nil {
		s.config.Logger.Info("metrics server stopping")
	}
	return s.httpSrv.Shutdown(ctx)
}
