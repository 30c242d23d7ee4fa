package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/logging"
	metricspkg "github.com/xfrag/webrtc/internal/observability/metrics"
)

// Endpoint serves the Prometheus metrics over HTTP.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	logger        *slog.Logger
}

// NewEndpoint creates a metrics endpoint. It fails if telemetry is disabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}

	logger := logging.ForService("observability")
	if logger == nil {
		logger = slog.Default()
	}

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
		logger:        logger.With("component", "endpoint"),
	}, nil
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}
	return e.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx is cancelled.
func (e *Endpoint) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("metrics endpoint starting", "address", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	e.logger.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics endpoint shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
