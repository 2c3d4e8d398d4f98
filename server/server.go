package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/headpose/config"
	"github.com/krau/headpose/pipeline"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg  config.Config
	pool *Pool
}

func New(cfg config.Config, pool *Pool) *Server {
	return &Server{cfg: cfg.Clamped(), pool: pool}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.GET("/health", s.HealthHandler)

	limiter := newRateLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	r.POST("/predict", limiter.middleware(), s.PredictHandler)
	return r
}

// Run serves until ctx is done, then drains in-flight requests and
// releases every session.
func Run(ctx context.Context, cfg config.Config, provider pipeline.Provider) error {
	pool, err := NewPool(cfg, provider)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			slog.Error("Failed to release sessions", slog.String("error", err.Error()))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	s := New(cfg, pool)
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Listening on", slog.String("address", srv.Addr), slog.Bool("two_stage", pool.TwoStage()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
