package app

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT" validate:"required"`
	LogMode     string `mapstructure:"LOG_MODE"`
	Environment string `mapstructure:"APP_ENV"`
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	Version     string `mapstructure:"APP_VERSION"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`

	JWTSecretKey string `mapstructure:"JWT_SECRET_KEY" validate:"required"`
	CORSOrigins  string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	MuxWebhookSecret   string        `mapstructure:"MUX_WEBHOOK_SECRET" validate:"required"`
	WebhookTolerance   time.Duration `mapstructure:"MUX_WEBHOOK_TOLERANCE" validate:"gte=0"`
	WebhookDedupeTTL   time.Duration `mapstructure:"WEBHOOK_DEDUPE_TTL" validate:"gte=0"`
	AssetMirrorRetries int           `mapstructure:"ASSET_MIRROR_MAX_ATTEMPTS" validate:"min=1"`
}

// bindEnv registers every mapstructure tag so Unmarshal sees env-only keys.
func bindEnv(c Config) {
	typ := reflect.TypeOf(c)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("mapstructure"); tag != "" {
			_ = viper.BindEnv(tag)
		}
	}
}

func LoadConfig() (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_MODE", "development")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("OTEL_SERVICE_NAME", "vidstream")
	viper.SetDefault("AUTO_MIGRATE", true)
	viper.SetDefault("MUX_WEBHOOK_TOLERANCE", "5m")
	viper.SetDefault("WEBHOOK_DEDUPE_TTL", "24h")
	viper.SetDefault("ASSET_MIRROR_MAX_ATTEMPTS", 5)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c Config) Addr() string { return ":" + strings.TrimPrefix(c.Port, ":") }

func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
