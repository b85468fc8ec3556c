// Seed populates a fresh database with demo users and a showing so the API
// can be exercised locally.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"bilet/internal/config"
	"bilet/internal/database"
	bileterr "bilet/internal/errors"
	"bilet/internal/logger"
	"bilet/internal/models"
	"bilet/internal/repository"
)

func main() {
	users := flag.Int("users", 10, "number of demo users to create")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")
	log := logger.Get()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	repos := repository.NewPostgres(db)
	ctx := context.Background()

	for i := 1; i <= *users; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		if _, err := repos.Users.GetByEmail(ctx, email); err == nil {
			continue
		} else if !bileterr.Is(err, bileterr.ErrNotFound) {
			logger.Fatal("Failed to check user", "email", email, "error", err)
		}

		hash := sha256.Sum256([]byte(fmt.Sprintf("password%d", i)))
		user := &models.User{
			Email:        email,
			PasswordHash: fmt.Sprintf("%x", hash),
		}
		if err := repos.Users.Create(ctx, user); err != nil {
			logger.Fatal("Failed to create user", "email", email, "error", err)
		}
	}
	log.Info("Demo users ready", "count", *users)

	starts := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Hour)
	showing := &models.Showing{
		Title:          "Demo Concert",
		StartsAt:       starts,
		AdmissionLimit: 100,
	}
	zones := []models.ZonePlan{
		{Zone: "A", Rows: 10, SeatsPerRow: 20, Grade: "vip", Price: 15000},
		{Zone: "B", Rows: 20, SeatsPerRow: 25, Grade: "standard", Price: 8000},
	}
	if err := repos.Showings.Create(ctx, showing, zones); err != nil {
		logger.Fatal("Failed to create showing", "error", err)
	}

	log.Info("Demo showing created",
		"showing_id", showing.ID, "total_seats", showing.TotalSeats, "starts_at", starts)
}
