package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/handler"
	"github.com/victor297/student-clearance/internal/repository"
	"github.com/victor297/student-clearance/internal/scheduler"
	"github.com/victor297/student-clearance/internal/service"
	"github.com/victor297/student-clearance/pkg/cache"
	"github.com/victor297/student-clearance/pkg/config"
	"github.com/victor297/student-clearance/pkg/database"
	"github.com/victor297/student-clearance/pkg/export"
	"github.com/victor297/student-clearance/pkg/jobs"
	"github.com/victor297/student-clearance/pkg/logger"
	"github.com/victor297/student-clearance/pkg/mailer"
	"github.com/victor297/student-clearance/pkg/storage"
)

// @title Student Clearance API
// @version 1.0.0
// @description Multi-department clearance approval workflow for graduating students
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	metrics := service.NewMetricsService()

	var redisClient *redis.Client
	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DashboardTTL, logr, cacheRepo != nil)

	documents, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init document storage: %w", err)
	}
	exportsDir, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	sender, err := mailer.New(cfg.Mail, logr)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	pdf := export.NewPDFExporter(cfg.Mail.FromName)
	emailWorker := service.NewEmailWorker(sender, pdf, metrics, logr)
	emailQueue := jobs.NewQueue("email", emailWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		BufferSize: cfg.Mail.QueueBuffer,
		MaxRetries: cfg.Mail.Retries,
		RetryDelay: cfg.Mail.RetryDelay,
		Logger:     logr,
	})
	emailQueue.Start(ctx)
	defer emailQueue.Stop()

	validate := validator.New()
	userRepo := repository.NewUserRepository(db)
	clearanceRepo := repository.NewClearanceRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)

	notifier := service.NewNotifier(userRepo, cacheSvc, emailQueue, metrics, logr, service.NotifierConfig{
		OfficerTTL: cfg.Cache.OfficerTTL,
		SenderName: cfg.Mail.FromName,
	})

	services := services{
		auth: service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
			Secret:     cfg.JWT.Secret,
			Expiration: cfg.JWT.Expiration,
			Issuer:     cfg.JWT.Issuer,
		}, service.WithAuthCache(cacheSvc)),
		users: service.NewUserService(userRepo, cacheSvc, validate, logr),
		clearance: service.NewClearanceService(clearanceRepo, userRepo, notifier, userRepo, validate, logr,
			service.WithClearanceCache(cacheSvc),
			service.WithClearanceMetrics(metrics),
			service.WithClearanceCertificates(pdf),
		),
		documents: service.NewDocumentService(documentRepo, clearanceRepo, userRepo, documents, signer, notifier, userRepo, cacheSvc, metrics, logr, service.DocumentServiceConfig{
			MaxFileSize:       cfg.Uploads.MaxFileSizeBytes,
			MaxFiles:          cfg.Uploads.MaxFiles,
			AllowedMIMEs:      cfg.Uploads.AllowedMIMEs,
			AllowedExtensions: cfg.Uploads.AllowedExtensions,
			PublicBaseURL:     cfg.Storage.PublicBaseURL,
			APIPrefix:         cfg.APIPrefix,
		}),
		imports:       service.NewImportService(userRepo, userRepo, metrics, logr, 0),
		departments:   service.NewDepartmentService(departmentRepo, userRepo, userRepo, validate, logr),
		notifications: service.NewNotificationService(notificationRepo, logr),
		dashboard: service.NewDashboardService(service.DashboardServiceParams{
			Requests: clearanceRepo,
			Students: userRepo,
			Cache:    cacheSvc,
			Metrics:  metrics,
			Logger:   logr,
			Config:   service.DashboardServiceConfig{CacheTTL: cfg.Cache.DashboardTTL},
		}),
		exports: service.NewExportService(clearanceRepo, exportsDir, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.TTL,
		}, logr, nil, pdf),
		metrics: metrics,
		audit:   userRepo,
	}

	if cfg.Scheduler.Enabled {
		reminders := service.NewReminderService(clearanceRepo, notificationRepo, notifier, logr)
		cronJobs, err := scheduler.New(reminders, services.exports, scheduler.Config{
			ReminderSpec: cfg.Scheduler.ReminderSpec,
			CleanupSpec:  cfg.Scheduler.CleanupSpec,
			ExportTTL:    cfg.Exports.TTL,
		}, logr)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		cronJobs.Start()
		defer cronJobs.Stop()
	}

	deps := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := newRouter(cfg, logr, services, deps)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageMinio:
		return storage.NewMinioStorage(ctx, cfg)
	case config.StorageLocal, "":
		return storage.NewLocalStorage(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
