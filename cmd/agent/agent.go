// Package agent provides the long-running sync agent command
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/app"
	"github.com/fieldscan/fieldscan/internal/connectivity"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability"
	"github.com/fieldscan/fieldscan/internal/offline"
)

const pruneInterval = time.Hour

// Command creates the agent command
func Command(loader *app.Loader) *cobra.Command {
	var drainInterval time.Duration
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Watch connectivity and send queued submissions",
		Long: `Probes the backend, drains the pending queue whenever the backend becomes reachable
and retries periodically while it stays reachable. Serves /metrics when metrics are enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loader.Open(cmd.Context())
			if err != nil {
				return err
			}
			return run(cmd.Context(), a, drainInterval)
		},
	}
	cmd.Flags().DurationVar(&drainInterval, "drain-interval", 5*time.Minute, "Retry interval for queued submissions while online (0 disables)")
	return cmd
}

func run(ctx context.Context, a *app.App, drainInterval time.Duration) error {
	log := logger.Global().Module("agent")
	a.EnableAutoDrain()

	cancelQueue := a.Offline.OnChange(func(s offline.QueueState) {
		if !s.Syncing {
			log.Info("queue state", logger.Int("pending", s.Pending))
		}
	})
	defer cancelQueue()
	cancelStatus := a.Monitor.OnChange(func(s connectivity.Status) {
		log.Info("connectivity changed",
			logger.Bool("reachable", s.Reachable),
			logger.String("transport", string(s.Transport)))
	})
	defer cancelStatus()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	if a.Settings.Metrics.Enabled {
		endpoint := observability.NewEndpoint(a.Settings.Metrics.Listen, a.Metrics, logger.Global().Module("observability"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := endpoint.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		housekeeping(ctx, a, drainInterval, log)
	}()

	log.Info("agent started", logger.Int("pending", a.Offline.PendingCount()))
	a.Monitor.Start()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error("metrics endpoint failed", logger.Error(runErr))
	}

	a.Monitor.Stop()
	wg.Wait()
	log.Info("agent stopped", logger.Int("pending", a.Offline.PendingCount()))
	return runErr
}

// housekeeping retries the queue while online and prunes expired cache rows
func housekeeping(ctx context.Context, a *app.App, drainInterval time.Duration, log logger.Logger) {
	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	var drainC <-chan time.Time
	if drainInterval > 0 {
		drain := time.NewTicker(drainInterval)
		defer drain.Stop()
		drainC = drain.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-drainC:
			if !a.Monitor.IsReachable() || a.Offline.PendingCount() == 0 {
				continue
			}
			if _, err := a.Offline.DrainQueue(ctx); err != nil {
				log.Warn("periodic drain failed", logger.Error(err))
			}
		case <-prune.C:
			if _, err := a.Offline.PruneExpired(ctx); err != nil {
				log.Warn("cache prune failed", logger.Error(err))
			}
		}
	}
}
