package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcmetrics/reviewbias/internal/app"
	"github.com/pcmetrics/reviewbias/internal/platform/config"
	db "github.com/pcmetrics/reviewbias/internal/storage"
)

func main() {
	mode := flag.String("mode", "clean", "Service mode (clean, worker, consume, export)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var database *db.DB

	if cfg.DatabaseEnabled() {
		poolOpts := db.PoolOptions{
			MaxConns:          cfg.DBMaxConnections,
			MinConns:          cfg.DBMinConnections,
			MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
			MaxConnLifetime:   cfg.DBMaxConnLifetime,
			HealthCheckPeriod: cfg.DBHealthCheckPeriod,
		}

		database, err = db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	application := app.New(cfg, database, &logger)

	// Long-running modes serve health and metrics in the background.
	if *mode == "worker" || *mode == "consume" {
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()
	}

	if err := runMode(ctx, application, *mode); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode string) error {
	switch mode {
	case "clean":
		return application.RunClean(ctx)
	case "worker":
		return application.RunWorker(ctx)
	case "consume":
		return application.RunConsume(ctx)
	case "export":
		return application.RunExport(ctx)
	default:
		log.Fatalf("Usage: %s --mode=[clean|worker|consume|export]", os.Args[0])

		return nil
	}
}
