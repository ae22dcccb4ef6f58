package main

import (
	"context"
	"io"

	"github.com/rebolloluis/family-tree/internal/config"
	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/handlers"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/internal/utils"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg         *config.Config
	photoStore  services.PhotoStore
	hub         *services.ChangeHub
	families    *services.FamilyService
	trees       *services.TreeService
	profiles    *services.ProfileService
	taskQueue   services.TaskQueue
	worker      *services.Worker
	logCleanup  *services.LogCleanupScheduler
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

	// Initialize system logger
	services.InitSystemLogger(models.GetDB())

	// Start system log cleanup scheduler
	logCleanup := services.NewLogCleanupScheduler(models.GetDB())
	if err := logCleanup.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start log cleanup scheduler")
	}

	// Photo storage: local disk or a GCS bucket
	photoStore, err := services.NewPhotoStore(context.Background(), cfg.Upload)
	if err != nil {
		logger.Fatalf("Failed to initialize photo storage: %v", err)
	}
	uploads := services.NewUploadService(photoStore, cfg.Upload.MaxUploadBytes())

	hub := services.GetChangeHub()
	persist := services.NewGormPersistence(models.GetDB(), hub, uploads)
	families := services.NewFamilyService(models.GetDB())

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	cleanup := services.NewPhotoCleanupProcessor(uploads)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(cleanup)
	}
	families.Notify(hub, taskQueue, uploads)

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(cleanup)
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start worker")
			}
		}
	}

	geometry := genealogy.Geometry{
		CardWidth:  cfg.Layout.CardWidth,
		CardHeight: cfg.Layout.CardHeight,
		GapX:       cfg.Layout.GapX,
		GapY:       cfg.Layout.GapY,
	}

	// Create default admin user
	authHandler := handlers.NewAuthHandler(models.GetDB(), cfg)
	if err := authHandler.CreateAdminIfNotExists(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:         cfg,
		photoStore:  photoStore,
		hub:         hub,
		families:    families,
		trees:       services.NewTreeService(persist, families, taskQueue, geometry),
		profiles:    services.NewProfileService(models.GetDB(), uploads),
		taskQueue:   taskQueue,
		worker:      worker,
		logCleanup:  logCleanup,
		authHandler: authHandler,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.logCleanup.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if closer, ok := s.photoStore.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close photo storage")
		}
	}
}
