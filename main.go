package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"teamassist/internal/api"
	"teamassist/internal/cache"
	"teamassist/internal/config"
	"teamassist/internal/llm"
	"teamassist/internal/manager"
	"teamassist/internal/platform"
	"teamassist/internal/seed"
	"teamassist/internal/storage"
	"teamassist/internal/tracking"
	"teamassist/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("TEAMASSIST_CONFIG"))
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	dbType := os.Getenv("TEAMASSIST_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	store, err := storage.New(db, logger)
	if err != nil {
		logger.Fatal("init store", zap.Error(err))
	}

	if seedPath := os.Getenv("TEAMASSIST_SEED"); seedPath != "" {
		if err := seed.Load(context.Background(), seedPath, store, logger); err != nil {
			logger.Fatal("load seed fixtures", zap.Error(err))
		}
	}

	// Roster source: configuration-backed, optionally fronted by redis.
	var roster platform.Roster = &platform.StaticRoster{Rosters: cfg.Rosters}
	if cfg.Redis.Host != "" {
		rdb, err := cache.NewClient(cfg)
		if err != nil {
			logger.Warn("redis unavailable, roster caching disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			ttl := time.Duration(cfg.BasicConfig.RosterCacheTTL) * time.Minute
			roster = cache.NewRosterCache(rdb, roster, ttl, logger)
		}
	}

	chatModel, err := llm.NewChatModel(context.Background(), cfg, cfg.BasicConfig.DefaultProvider)
	if err != nil {
		logger.Fatal("init chat model", zap.Error(err))
	}

	tracker := tracking.NewTracker(store, logger)
	webSearch := manager.NewWebSearchTool(context.Background(), logger)
	mgr := manager.New(store, tracker, chatModel, roster, webSearch, logger)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}, mgr, logger)

	router := gin.Default()
	api.NewHandler(store, dispatcher, nil, logger).RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	logger.Info("starting server", zap.String("addr", addr), zap.String("db", dbType))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
