package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// HTTPServer is the lifecycle subset of *http.Server
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server until the supervisor stops it
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server. A non-positive timeout uses 10s.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }

// Task is one unit of periodic work
type Task func(ctx context.Context) error

// PeriodicService runs a task on a fixed interval. Task errors are logged, not returned.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     Task
	log      zerolog.Logger
}

// NewPeriodicService creates a service that runs task every interval, starting after the first tick
func NewPeriodicService(name string, interval time.Duration, task Task, log zerolog.Logger) *PeriodicService {
	return &PeriodicService{
		name:     name,
		interval: interval,
		task:     task,
		log:      log.With().Str("service", name).Logger(),
	}
}

// Serve implements suture.Service
func (p *PeriodicService) Serve(ctx context.Context) error {
	if p.interval <= 0 {
		return suture.ErrDoNotRestart
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.task(ctx); err != nil && ctx.Err() == nil {
				p.log.Warn().Err(err).Msg("Periodic task failed")
			}
		}
	}
}

func (p *PeriodicService) String() string { return p.name }

// OnceService runs a task a single time and is never restarted
type OnceService struct {
	name string
	task Task
	log  zerolog.Logger
}

// NewOnceService creates a one-shot service
func NewOnceService(name string, task Task, log zerolog.Logger) *OnceService {
	return &OnceService{name: name, task: task, log: log.With().Str("service", name).Logger()}
}

// Serve implements suture.Service
func (o *OnceService) Serve(ctx context.Context) error {
	if err := o.task(ctx); err != nil && ctx.Err() == nil {
		o.log.Warn().Err(err).Msg("Startup task failed")
	}
	return suture.ErrDoNotRestart
}

func (o *OnceService) String() string { return o.name }
