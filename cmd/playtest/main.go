package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/playtestlabs/playtest/internal/config"
	"github.com/playtestlabs/playtest/internal/db"
	"github.com/playtestlabs/playtest/internal/image"
	"github.com/playtestlabs/playtest/internal/metrics"
	"github.com/playtestlabs/playtest/internal/observability"
	"github.com/playtestlabs/playtest/internal/order"
	"github.com/playtestlabs/playtest/internal/payment"
	"github.com/playtestlabs/playtest/internal/redis"
	"github.com/playtestlabs/playtest/internal/seed"
	"github.com/playtestlabs/playtest/internal/server"
	"github.com/playtestlabs/playtest/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "playtest",
		Short:   "Playtest order service",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newSeedCmd(), newServeCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo data for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		fx.Invoke(func(gdb *gorm.DB, log *zap.Logger) error {
			if err := db.Migrate(gdb); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runSeed() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		fx.Invoke(func(gdb *gorm.DB, node *snowflake.Node, log *zap.Logger) error {
			if err := seed.EnsureDemoOrder(gdb, node); err != nil {
				return err
			}
			log.Info("demo order seeded")
			return nil
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Invoke(validateConfig),
		fx.Provide(registerSnowflake),
		db.Module,
		redis.Module,
		metrics.Module,
		order.Module,
		payment.Module,
		storage.Module,
		image.Module,
		server.Module,
	)
	app.Run()
}

func validateConfig(cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		log.Error("configuration incomplete", zap.Error(err))
		return err
	}
	log.Info("environment variables validated")
	return nil
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
