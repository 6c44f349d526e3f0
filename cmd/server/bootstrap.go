package main

import (
	"context"
	"time"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/handlers"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/internal/utils"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg         *config.Config
	gateway     *services.GenerationService
	lifecycle   *services.LifecycleService
	autosaver   *services.AutosaveService
	cache       services.SnapshotCache
	notifier    *services.NotificationService
	scheduler   *services.ReminderScheduler
	taskQueue   services.TaskQueue
	worker      *services.Worker
	authHandler *handlers.AuthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	// Seed AI providers from the config file (first start only)
	if err := services.NewAIProviderService(models.GetDB()).SeedFromConfig(cfg.AI.Providers); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed AI providers")
	}

	// Initialize system logger
	services.InitSystemLogger(models.GetDB())

	// Start system log cleanup scheduler
	services.StartLogCleanupScheduler(models.GetDB())

	// Question sources: AI provider chain first, rule-based analyzer as fallback
	aiService := services.NewAIService(models.GetDB(), &cfg.AI)
	analyzer := services.NewAnalyzer(services.AnalyzerThresholds{
		DelinquencyAmount:  cfg.Generation.DelinquencyThreshold,
		SignificantChanges: cfg.Generation.SignificantChanges,
		HighImpactChanges:  cfg.Generation.HighImpactChanges,
	})

	cache := services.NewSnapshotCache(&cfg.Redis)
	notifier := services.NewNotificationService(cfg.Notify.Webhooks)

	gateway := services.NewGenerationService(models.GetDB(), cfg, services.SourceChain{aiService, analyzer})
	gateway.SetSnapshotCache(cache)
	gateway.SetNotifier(notifier)
	gateway.SetEvents(services.GetEventHub())

	autosaver := services.NewAutosaveService(models.GetDB(),
		time.Duration(cfg.Autosave.DebounceSeconds)*time.Second,
		time.Duration(cfg.Autosave.CeilingSeconds)*time.Second)
	lifecycle := services.NewLifecycleService(models.GetDB(), autosaver)
	lifecycle.SetEvents(services.GetEventHub())

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	processTask := func(ctx context.Context, t *services.GenerateTask) error {
		_, err := gateway.Generate(ctx, &services.GenerationRequest{
			Country:    t.Country,
			ReportDate: t.ReportDate,
			FocusAreas: t.FocusAreas,
		})
		return err
	}
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processTask)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processTask)
			worker.Start()
		}
	}

	// Start due-date reminder scheduler
	scheduler := services.NewReminderScheduler(models.GetDB(), notifier)
	scheduler.Start()

	// Create default admin user
	authHandler := handlers.NewAuthHandler(models.GetDB(), cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:         cfg,
		gateway:     gateway,
		lifecycle:   lifecycle,
		autosaver:   autosaver,
		cache:       cache,
		notifier:    notifier,
		scheduler:   scheduler,
		taskQueue:   taskQueue,
		worker:      worker,
		authHandler: authHandler,
	}
}

// shutdown gracefully stops all services. Buffered drafts are flushed before
// the queue closes so nothing typed is lost.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	services.StopLogCleanupScheduler()

	if err := s.autosaver.FlushAll(); err != nil {
		logger.Error().Err(err).Msg("draft flush on shutdown failed")
	}

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
