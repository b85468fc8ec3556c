package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bilet/internal/cache"
	"bilet/internal/config"
	"bilet/internal/database"
	"bilet/internal/logger"
	"bilet/internal/messaging"
	"bilet/internal/repository"
	"bilet/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	cfg.NATS.ClientID = "bilet-sweeper"

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	var repos *repository.Repositories
	switch cfg.StoreDriver {
	case "memory":
		repos = repository.NewMemory()
	default:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()
		repos = repository.NewPostgres(db)
	}

	var slots cache.SlotStore
	switch cfg.CounterDriver {
	case "memory":
		slots = cache.NewMemoryStore()
	default:
		redisStore, err := cache.NewRedisStore(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisStore.Close()
		slots = redisStore
	}

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if natsClient, err := messaging.NewNATSClient(cfg.NATS); err != nil {
		log.Warn("NATS unavailable, events disabled", "error", err)
	} else {
		defer natsClient.Close()
		publisher = natsClient
	}

	services := service.New(repos, slots, publisher, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down sweeper...")
		cancel()
	}()

	if err := services.Sweeper.SweepOnce(ctx); err != nil {
		log.Error("Initial sweep failed", "error", err)
	}

	services.Sweeper.Start(ctx)
	log.Info("Sweeper stopped")
}
