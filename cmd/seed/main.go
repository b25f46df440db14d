package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/repository"
	"github.com/victor297/student-clearance/internal/service"
	"github.com/victor297/student-clearance/pkg/cache"
	"github.com/victor297/student-clearance/pkg/config"
	"github.com/victor297/student-clearance/pkg/database"
	"github.com/victor297/student-clearance/pkg/logger"
)

func main() {
	file := flag.String("file", "seed.yaml", "path to the seed file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	raw, err := os.ReadFile(*file)
	if err != nil {
		logr.Fatal("failed to read seed file", zap.String("file", *file), zap.Error(err))
	}
	data, err := parseSeed(raw)
	if err != nil {
		logr.Fatal("invalid seed file", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal("failed to migrate database", zap.Error(err))
	}

	s := &seeder{
		users:       repository.NewUserRepository(db),
		departments: repository.NewDepartmentRepository(db),
		logger:      logr,
	}
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, officer cache not cleared", zap.Error(err))
		} else {
			defer client.Close()
			s.officers = service.NewCacheService(repository.NewCacheRepository(client, logr), nil, cfg.Cache.DashboardTTL, logr, true)
		}
	}
	summary, err := s.apply(ctx, data)
	if err != nil {
		logr.Fatal("seeding failed", zap.Error(err))
	}
	logr.Info("seed applied",
		zap.Int("users_created", summary.UsersCreated),
		zap.Int("users_existing", summary.UsersExisting),
		zap.Int("departments_created", summary.DepartmentsCreated),
	)
}
