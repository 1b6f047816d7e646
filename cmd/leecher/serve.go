package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leecher/internal/api"
	"leecher/internal/database"
	"leecher/internal/events"
	"leecher/internal/logging"
	"leecher/internal/metrics"
	"leecher/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC APIs and the periodic drain worker",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.Component(logger, "serve")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		g.Go(func() error { return serveMetrics(gctx, cfg.Monitoring.PrometheusPort, log) })
	}

	if cfg.Scheduler.Enabled {
		drainWorker := worker.NewDrainWorker(a.processor, cfg.Scheduler.Interval(), worker.RetryPolicy{
			MaxRetries:    cfg.Scheduler.MaxRetries,
			InitialDelay:  2 * time.Second,
			MaxDelay:      time.Minute,
			BackoffFactor: 2,
		}, logging.Component(logger, "drain-worker"))
		if cfg.Scheduler.DrainOnSubmit {
			a.bus.Subscribe(events.EventProjectSubmitted, func(*events.Event) error {
				drainWorker.Trigger()
				return nil
			})
		}
		g.Go(func() error {
			drainWorker.Start(gctx)
			return nil
		})
	} else {
		log.Warn().Msg("Scheduler is disabled; the queue drains only on demand")
	}

	if cfg.Backup.Enabled && a.db != nil {
		backups := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))
		g.Go(func() error {
			backups.Start(gctx)
			return nil
		})
	}

	subscribeDrainEvents(a.bus, log)

	if cfg.API.Enabled {
		if err := startAPI(gctx, g, a, log); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("API is disabled in config")
	}

	log.Info().Str("version", Version).Msg("leecher started")
	err = g.Wait()
	log.Info().Msg("leecher stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func startAPI(ctx context.Context, g *errgroup.Group, a *app, log *zerolog.Logger) error {
	if cfg.API.GRPC.Enabled {
		grpcServer, err := api.NewGRPCServer(&cfg.API, a.store, logger)
		if err != nil {
			log.Error().Err(err).Msg("create grpc server")
			return err
		}
		g.Go(grpcServer.Serve)
		g.Go(func() error {
			grpcServer.WatchStore(ctx, 15*time.Second)
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			grpcServer.Shutdown(shutdownCtx)
			return nil
		})
	}

	if cfg.API.HTTP.Enabled {
		httpServer := api.NewHTTPServer(&cfg.API, api.Services{
			Scheduler: a.registrar,
			Drainer:   a.processor,
			Batcher:   a.runner,
			Store:     a.store,
		}, logger)
		g.Go(httpServer.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}
	return nil
}

func serveMetrics(ctx context.Context, port int, log *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", port).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// subscribeDrainEvents логирует итог каждого элемента очереди
func subscribeDrainEvents(bus *events.EventBus, log *zerolog.Logger) {
	bus.Subscribe(events.EventQueueItemDrained, func(ev *events.Event) error {
		var payload events.ItemPayload
		if err := ev.Decode(&payload); err != nil {
			log.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		log.Info().
			Str("project", payload.ProjectName).
			Str("queue_item_id", payload.QueueItemID).
			Str("result", payload.Result).
			Bool("skipped", payload.Skipped).
			Msg("Queue item drained")
		return nil
	})
}
