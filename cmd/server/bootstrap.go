package main

import (
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/config"
	"github.com/tasktrail/tasktrail/internal/handlers"
	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/internal/services"
	"github.com/tasktrail/tasktrail/internal/utils"
	"github.com/tasktrail/tasktrail/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds the initialized dependencies shared across the router.
type appServices struct {
	cfg           *config.Config
	resolver      *authz.Resolver
	events        services.EventQueue
	worker        *services.Worker
	digestService *services.DigestService
	authHandler   *handlers.AuthHandler
}

// bootstrap initializes the database, seeds baseline data and starts the
// background machinery: event queue, async worker, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()

	if err := authz.SeedCatalog(db); err != nil {
		logger.Fatalf("Failed to seed permission catalog: %v", err)
	}
	if err := services.EnsureDefaultRoles(db, models.DefaultTenantID); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default roles")
	}

	resolver := authz.NewResolver(db)

	services.InitSystemLogger(db)
	services.StartLogCleanupScheduler(db)

	// Event queue: Redis-backed asynq if enabled, in-process otherwise.
	notificationService := services.NewNotificationService(db)
	events := services.InitEventQueue(cfg)
	if syncQueue, ok := events.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(notificationService.ProcessTaskEvent)
	}

	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(notificationService.ProcessTaskEvent)
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start async worker")
			}
		}
	}

	digestService := services.NewDigestService(db, &cfg.Digest)
	if cfg.Digest.Enabled {
		digestService.StartScheduler()
	}

	if err := ensureAdminUser(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:           cfg,
		resolver:      resolver,
		events:        events,
		worker:        worker,
		digestService: digestService,
		authHandler:   handlers.NewAuthHandler(db, cfg),
	}
}

// ensureAdminUser bootstraps an "admin" account holding the Admin role in the
// default tenant when the user table is empty.
func ensureAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Where("tenant_id = ?", models.DefaultTenantID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	var adminRole models.Role
	if err := db.Where("tenant_id = ? AND name = ?", models.DefaultTenantID, "Admin").First(&adminRole).Error; err != nil {
		return err
	}

	admin := models.User{
		TenantID: models.DefaultTenantID,
		Username: "admin",
		Password: hashed,
		Nickname: "Administrator",
		AuthType: "local",
		IsActive: true,
		Roles:    []models.Role{adminRole},
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	logger.Info().Msg("Created default admin user (username: admin), change the password immediately")
	return nil
}

// shutdown gracefully stops the background machinery.
func (s *appServices) shutdown() {
	s.digestService.StopScheduler()
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.events != nil {
		s.events.Close()
	}
	logger.Info().Msg("Background services stopped")
}
