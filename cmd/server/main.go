package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"recmirror/internal/api"
	"recmirror/internal/config"
	"recmirror/internal/database"
	"recmirror/internal/docset"
	"recmirror/internal/domain"
	"recmirror/internal/drive"
	"recmirror/internal/events"
	"recmirror/internal/export"
	"recmirror/internal/gitstore"
	"recmirror/internal/logging"
	"recmirror/internal/metrics"
	"recmirror/internal/models"
	"recmirror/internal/notify"
	"recmirror/internal/repository"
	"recmirror/internal/scheduler"
	"recmirror/internal/source"
	syncpkg "recmirror/internal/sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	startMetricsServer(cfg, logger)

	redisClient, statusCache := initStatusCache(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	eventBus := events.NewEventBus()
	subscribeSyncEvents(eventBus, logger)

	notifier, err := initNotifier(cfg, logger)
	if err != nil {
		return err
	}

	uploader, err := initDrive(cfg, logger)
	if err != nil {
		return err
	}

	sourceClient := source.NewClient(cfg.Source, logger)
	mirror := gitstore.NewClient(cfg.GitStore, logger)

	orch := syncpkg.NewOrchestrator(syncpkg.Options{
		Records:  db,
		Groups:   db,
		Source:   sourceClient,
		Mirror:   mirror,
		Cache:    statusCache,
		Bus:      eventBus,
		Notifier: notifier,
		Drive:    uploader,
		Workers:  cfg.Sync.Workers,
		Logger:   logger,
	})

	// Записи, зависшие в syncing после падения процесса, переводим в error
	orch.Projector().Reconcile(ctx, cfg.Scheduler.GraceDuration())

	docs := docset.NewRunner(cfg.DocSet, mirror, logger)

	sched := scheduler.New(scheduler.Options{
		Jobs:             db,
		Records:          db,
		Groups:           db,
		Manager:          orch,
		Docs:             docs,
		Bus:              eventBus,
		Notifier:         notifier,
		Logger:           logger,
		PollInterval:     cfg.Scheduler.PollDuration(),
		ProgressInterval: cfg.Scheduler.ProgressDuration(),
		WaitCeiling:      cfg.Scheduler.CeilingDuration(),
	})
	go sched.Run(ctx)

	if cfg.API.Enabled {
		exporter := export.NewExporter(db, db, cfg.Exports.Path, logger)
		apiServer := api.NewHTTPServer(cfg.API, api.Deps{
			Manager: orch,
			Records: db,
			Jobs:    db,
			Cache:   statusCache,
			Runner:  sched,
			Export:  exporter,
			Logger:  logger,
		})
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Str("version", cfg.App.Version).Msg("recmirror started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()
	return cfg, &logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

func initStatusCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.StatusCache) {
	fallback := repository.NewMemoryStatusCache()
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("Redis is not configured, using in-memory status cache")
		return nil, fallback
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisStatusCache(client, time.Duration(models.DefaultStatusTTL)*time.Second)
	return client, repository.NewFailoverStatusCache(primary, fallback, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) (domain.Notifier, error) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	notifier, err := notify.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return nil, err
	}
	return notifier, nil
}

func initDrive(cfg *config.Config, logger *zerolog.Logger) (domain.DriveUploader, error) {
	if !cfg.Drive.Enabled {
		return nil, nil
	}
	uploader, err := drive.NewUploader(cfg.Drive, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize Google Drive uploader")
		return nil, err
	}
	logger.Info().Msg("Google Drive uploader initialized successfully")
	return uploader, nil
}

func subscribeSyncEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventSyncFailed, func(ev *events.Event) error {
		var payload events.SyncEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Warn().
			Int64("record_id", payload.RecordID).
			Int64("group_id", payload.GroupID).
			Str("error", payload.Error).
			Msg("record sync failed")
		return nil
	})

	bus.Subscribe(events.EventBulkFinished, func(ev *events.Event) error {
		var payload events.BulkEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Int64("group_id", payload.GroupID).
			Str("session_id", payload.SessionID).
			Int("done", payload.Done).
			Int("total", payload.Total).
			Msg("bulk session finished")
		return nil
	})
}

func startMetricsServer(cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)

	go func() {
		logger.Info().Str("addr", addr).Msg("Prometheus metrics listening")
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}
