package db

import (
	"fmt"

	"github.com/playtestlabs/playtest/internal/config"
	orderdomain "github.com/playtestlabs/playtest/internal/order/domain"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

func New(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected")
	return gdb, nil
}

// Migrate creates or updates the schema for every persisted model.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&orderdomain.Order{},
		&paymentdomain.WebhookEvent{},
	)
}
