package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fieldscan/fieldscan/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Endpoint serves /metrics
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint returns an endpoint for metrics on listen
func NewEndpoint(listen string, metrics *Metrics, log logger.Logger) *Endpoint {
	if log == nil {
		log = logger.Global().Module("observability")
	}
	return &Endpoint{listenAddress: listen, metrics: metrics, log: log}
}

// Run serves until ctx is done, then shuts down gracefully
func (e *Endpoint) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("metrics endpoint starting", logger.String("address", e.listenAddress))
		errCh <- e.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
