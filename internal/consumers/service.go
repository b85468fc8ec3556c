// Package consumers runs the NATS Streaming subscribers that drive booking
// finalization from payment signals and log the booking event stream.
package consumers

import (
	"context"
	"fmt"

	"bilet/internal/cache"
	"bilet/internal/config"
	"bilet/internal/database"
	"bilet/internal/logger"
	"bilet/internal/messaging"
	"bilet/internal/models"
	"bilet/internal/repository"
	"bilet/internal/service"
)

type ConsumerService struct {
	db       *database.DB
	redis    *cache.RedisStore
	nats     *messaging.NATSClient
	handlers *Handlers
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	cs := &ConsumerService{}

	var repos *repository.Repositories
	switch cfg.StoreDriver {
	case "memory":
		repos = repository.NewMemory()
	default:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		cs.db = db
		repos = repository.NewPostgres(db)
	}

	var slots cache.SlotStore
	switch cfg.CounterDriver {
	case "memory":
		slots = cache.NewMemoryStore()
	default:
		redisStore, err := cache.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		cs.redis = redisStore
		slots = redisStore
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	cs.nats = natsClient

	services := service.New(repos, slots, natsClient, nil, cfg)
	cs.handlers = NewHandlers(services)

	return cs, nil
}

func (cs *ConsumerService) Start() error {
	log := logger.Get()
	log.Info("Starting NATS consumers...")

	if _, err := cs.nats.SubscribeQueue(models.SubjectPaymentCompleted, "consumers", cs.handlers.HandlePaymentCompleted); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.SubjectPaymentFailed, "consumers", cs.handlers.HandlePaymentFailed); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.SubjectBookingCreated, "consumers", cs.handlers.HandleBookingCreated); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.SubjectBookingCancelled, "consumers", cs.handlers.HandleBookingCancelled); err != nil {
		return err
	}

	log.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	log := logger.Get()
	log.Info("Shutting down consumer service...")

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			log.Error("Error closing NATS connection", "error", err)
		}
	}
	if cs.redis != nil {
		if err := cs.redis.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}
	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
			return err
		}
	}
	return nil
}
