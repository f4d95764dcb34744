package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fuelstation-cloud/internal/migrations"
	"fuelstation-cloud/internal/observability/metrics"
	settlementapp "fuelstation-cloud/internal/settlement/application"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "HTTP listen address (default $HTTP_ADDR or :8080)")
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, outbox dispatcher and auto-close scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		cfg.MigrateOnStart = true
	}
	logger := newLogger()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if _, err := migrations.Apply(ctx, db, logger); err != nil {
			return err
		}
	}

	metrics.Init(db, logger)
	a, err := buildApp(cfg, db, logger)
	if err != nil {
		return err
	}
	defer a.shutdown()

	handler, err := newRouter(a, cfg, logger)
	if err != nil {
		return err
	}

	if a.dispatcher != nil {
		go a.dispatcher.Run(ctx, cfg.OutboxInterval, cfg.OutboxBatch)
	}
	if cfg.ProcessedRetention > 0 {
		go pruneProcessed(ctx, a.events.Processed(), cfg.ProcessedRetention, logger)
	}
	if len(cfg.AutoCloseStations) > 0 {
		scheduler := settlementapp.NewScheduler(a.finalizer, cfg.AutoCloseStations, cfg.AutoCloseAt, logger)
		go scheduler.Start(ctx)
		logger.Printf("auto-close scheduled at %s UTC for %d stations", cfg.AutoCloseAt, len(cfg.AutoCloseStations))
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type processedPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// pruneProcessed drops consumer idempotency marks older than retention once
// an hour. Redelivery of events older than retention is not expected.
func pruneProcessed(ctx context.Context, store processedPruner, retention time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.Prune(ctx, now.Add(-retention))
			if err != nil {
				logger.Printf("processed prune failed: %v", err)
				continue
			}
			if removed > 0 {
				logger.Printf("processed prune: removed=%d", removed)
			}
		}
	}
}
