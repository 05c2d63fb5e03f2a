package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/app"
	"github.com/scholarr/plagiarism-service/internal/config"
	"github.com/scholarr/plagiarism-service/internal/database"
	"github.com/scholarr/plagiarism-service/pkg/logger"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			direction := "up"
			if len(os.Args) > 2 {
				direction = os.Args[2]
			}
			runMigrations(direction, os.Args[3:])
			return
		case "worker":
			runWorker()
			return
		case "serve":
		default:
			bootLog := logger.New()
			bootLog.Fatal().Str("command", os.Args[1]).Msg("Unknown command. Use 'serve', 'worker' or 'migrate'")
		}
	}

	cfg, log := bootstrap()

	application := newApp(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	go func() {
		if err := application.Run(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run application")
		}
	}()

	log.Info().Msgf("Plagiarism Service started on %s", cfg.Server.Address)

	<-ctx.Done()
	shutdown(application, cfg, log)
}

func bootstrap() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	return cfg, logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)
}

func newApp(cfg *config.Config, log zerolog.Logger) *app.App {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	log.Info().Msg("Database connection established")

	application, err := app.New(cfg, log, db)
	if err != nil {
		db.Close()
		log.Fatal().Err(err).Msg("Failed to create application")
	}
	return application
}

func shutdown(application *app.App, cfg *config.Config, log zerolog.Logger) {
	log.Info().Msg("Shutting down Plagiarism Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}
}

func runMigrations(direction string, args []string) {
	cfg, log := bootstrap()

	migrator, err := database.NewMigrator(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	case "force":
		if len(args) == 0 {
			log.Fatal().Msg("Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid migration version")
		}
		if err := migrator.Force(version); err != nil {
			log.Fatal().Err(err).Msg("Failed to force migration version")
		}
		log.Info().Int("version", version).Msg("Migration version forced")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
	default:
		log.Fatal().Msg("Invalid migration direction. Use 'up', 'down', 'force' or 'version'")
	}
}

func runWorker() {
	cfg, log := bootstrap()

	application := newApp(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	log.Info().Msg("Starting standalone worker...")
	if err := application.RunWorker(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run worker")
	}

	shutdown(application, cfg, log)
}
