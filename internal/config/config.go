package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds all runtime configuration. Values come from the environment,
// optionally seeded from a .env file during local development.
type Config struct {
	Env      string
	HTTPAddr string

	AllowedOrigins []string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StripeSecretKey     string
	StripeWebhookSecret string

	SupabaseURL        string
	SupabaseServiceKey string
	StorageBucket      string
}

func Load() (Config, error) {
	// Best-effort .env load; missing file is fine in production.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":3001")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080,http://localhost:3001")
	v.SetDefault("STORAGE_BUCKET", "order-images")
	v.SetDefault("REDIS_DB", 0)

	if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err == nil {
			v.OnConfigChange(func(e fsnotify.Event) {
				// Picked up on next read; credentials are cached in Config,
				// so a restart is still required for key rotation.
			})
			v.WatchConfig()
		}
	}

	cfg := Config{
		Env:                 v.GetString("APP_ENV"),
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		AllowedOrigins:      splitOrigins(v.GetString("ALLOWED_ORIGINS")),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             v.GetInt("REDIS_DB"),
		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		SupabaseURL:         strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseServiceKey:  v.GetString("SUPABASE_SERVICE_KEY"),
		StorageBucket:       v.GetString("STORAGE_BUCKET"),
	}
	return cfg, nil
}

// Validate reports every missing required variable at once so operators can
// fix the environment in a single pass.
func (c Config) Validate() error {
	required := map[string]string{
		"STRIPE_SECRET_KEY":     c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
		"SUPABASE_URL":          c.SupabaseURL,
		"SUPABASE_SERVICE_KEY":  c.SupabaseServiceKey,
	}

	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
