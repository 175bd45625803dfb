package main

import (
	"context"
	"errors"
	"log"

	"github.com/joho/godotenv"

	"github.com/oksasatya/authcore/config"
	"github.com/oksasatya/authcore/internal/domain/entity"
	"github.com/oksasatya/authcore/internal/domain/repository"
	pginfra "github.com/oksasatya/authcore/internal/infrastructure/postgres"
	"github.com/oksasatya/authcore/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	ctx := context.Background()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), 2, 1, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	repo := pginfra.NewUserRepository(pool)
	hasher := helpers.NewPasswordHasher(cfg.BcryptCost)

	const (
		email    = "demo@example.com"
		username = "demoUser"
		password = "password123"
	)
	u := &entity.User{
		Name:          "Demo User",
		Username:      username,
		Email:         email,
		Provider:      entity.ProviderLocal,
		EmailVerified: true,
	}
	u.SetPassword(password)
	plain, _ := u.PendingPassword()
	hash, err := hasher.Hash(plain)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	u.ApplyPasswordHash(hash)

	created, err := repo.Insert(ctx, u)
	if errors.Is(err, repository.ErrDuplicate) {
		logger.WithField("email", email).Info("demo user already present")
		return
	}
	if err != nil {
		log.Fatalf("failed to seed user: %v", err)
	}
	logger.WithField("id", created.ID).WithField("email", email).Infof("seeded user (password %s)", password)
}
