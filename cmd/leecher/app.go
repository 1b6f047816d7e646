package main

import (
	"context"
	"fmt"
	"time"

	"leecher/internal/avalon"
	"leecher/internal/batch"
	"leecher/internal/config"
	"leecher/internal/database"
	"leecher/internal/domain"
	"leecher/internal/events"
	"leecher/internal/logging"
	"leecher/internal/repository"
	"leecher/internal/schedule"
	"leecher/internal/shotgrid"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger

	db          *database.DB // nil for the redis store
	redisClient *redis.Client
	store       domain.ScheduleStore
	locker      domain.DrainLocker
	writer      *avalon.Writer
	bus         *events.EventBus

	runner    *batch.Runner
	registrar *schedule.Registrar
	processor *schedule.Processor
}

func newApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, bus: events.NewEventBus()}

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	writer, err := avalon.NewWriter(cfg.Destination.Path, logging.Component(logger, "avalon"))
	if err != nil {
		a.Close()
		logger.Error().Err(err).Str("path", cfg.Destination.Path).Msg("init destination database")
		return nil, err
	}
	a.writer = writer

	fetcher := batch.NewShotgridFetcher(a.shotgridOptions())
	a.runner = batch.NewRunner(fetcher, writer, logging.Component(logger, "batch"))
	a.registrar = schedule.NewRegistrar(a.store, writer, a.bus, cfg.Scheduler.PurgeQueueOnCancel, logging.Component(logger, "registrar"))
	a.processor = schedule.NewProcessor(a.store, a.runner, a.locker, a.bus, cfg.Scheduler.LockTTL(), logging.Component(logger, "processor"))
	return a, nil
}

func (a *app) initStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.StoreRedis:
		a.redisClient = repository.NewRedisClient(a.cfg.Redis)
		if err := repository.Ping(ctx, a.redisClient); err != nil {
			return fmt.Errorf("redis store unavailable: %w", err)
		}
		a.store = repository.NewRedisScheduleStore(a.redisClient, a.cfg.Redis.KeyPrefix)
	default:
		db, err := database.NewDB(a.cfg.Database.Path, logging.Component(a.logger, "database"))
		if err != nil {
			a.logger.Error().Err(err).Str("db_path", a.cfg.Database.Path).Msg("init database")
			return err
		}
		a.db = db
		a.store = db
	}

	// Лок живёт рядом с очередью: все процессы на одном хранилище видят одного владельца
	switch {
	case a.db != nil:
		a.locker = database.NewLocker(a.db)
	case a.cfg.Store.LockFailover:
		a.locker = repository.NewFailoverLocker(
			repository.NewRedisLocker(a.redisClient, a.cfg.Redis.KeyPrefix),
			repository.NewMemoryLocker(),
			logging.Component(a.logger, "locker"),
		)
	default:
		a.locker = repository.NewRedisLocker(a.redisClient, a.cfg.Redis.KeyPrefix)
	}

	a.logger.Info().Str("driver", a.cfg.Store.Driver).Msg("Schedule store ready")
	return nil
}

func (a *app) shotgridOptions() shotgrid.Options {
	return shotgrid.Options{
		PageSize: a.cfg.Shotgrid.PageSize,
		RPS:      a.cfg.Shotgrid.RPS,
		Timeout:  time.Duration(a.cfg.Shotgrid.TimeoutSeconds) * time.Second,
		Logger:   a.logger,
	}
}

func (a *app) Close() {
	if a.writer != nil {
		_ = a.writer.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redisClient != nil {
		_ = repository.Close(a.redisClient)
	}
}
