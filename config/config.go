package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		App     `json:"app"     toml:"app"`
		HTTP    `json:"http"    toml:"http"`
		DB      `json:"db"      toml:"db"`
		Redis   `json:"redis"   toml:"redis"`
		Log     `json:"logger"  toml:"logger"`
		Escrow  `json:"escrow"  toml:"escrow"`
		Auth    `json:"auth"    toml:"auth"`
		Support `json:"support" toml:"support"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME" env-default:"whitetriangle"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	// DB is optional. An empty DatabaseURL keeps orders in memory.
	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		MigrationsPath    string `json:"migrations_path"     toml:"migrations_path"     env:"MIGRATIONS_PATH"      env-default:"./migrations"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX"          env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK"  env-default:"1"`
	}

	// Redis is optional. An empty URL keeps support transcripts in memory.
	Redis struct {
		URL           string        `json:"url"            toml:"url"            env:"REDIS_URL"`
		TranscriptTTL time.Duration `json:"transcript_ttl" toml:"transcript_ttl" env:"REDIS_TRANSCRIPT_TTL" env-default:"24h"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}

	Escrow struct {
		FeeRate             string        `json:"fee_rate"              toml:"fee_rate"              env:"ESCROW_FEE_RATE"         env-default:"0.008"`
		LockDelay           time.Duration `json:"lock_delay"            toml:"lock_delay"            env:"ESCROW_LOCK_DELAY"       env-default:"1500ms"`
		OrderExpiration     time.Duration `json:"order_expiration"      toml:"order_expiration"      env:"ORDER_EXPIRATION"        env-default:"24h"`
		ExpiryCheckInterval time.Duration `json:"expiry_check_interval" toml:"expiry_check_interval" env:"ORDER_EXPIRY_INTERVAL"   env-default:"5m"`
		SeedDemoData        bool          `json:"seed_demo_data"        toml:"seed_demo_data"        env:"SEED_DEMO_DATA"          env-default:"true"`
	}

	Auth struct {
		JWTSecret    string        `json:"jwt_secret"    toml:"jwt_secret"    env:"JWT_SECRET"          env-default:"whitetriangle-dev-secret"`
		TokenTTL     time.Duration `json:"token_ttl"     toml:"token_ttl"     env:"JWT_TTL"             env-default:"24h"`
		ChallengeTTL time.Duration `json:"challenge_ttl" toml:"challenge_ttl" env:"OTP_CHALLENGE_TTL"   env-default:"5m"`
	}

	Support struct {
		APIKey         string        `json:"api_key"         toml:"api_key"         env:"GEMINI_API_KEY"`
		Model          string        `json:"model"           toml:"model"           env:"SUPPORT_MODEL"           env-default:"gemini-3-pro-preview"`
		ThinkingBudget int32         `json:"thinking_budget" toml:"thinking_budget" env:"SUPPORT_THINKING_BUDGET" env-default:"32768"`
		Temperature    float32       `json:"temperature"     toml:"temperature"     env:"SUPPORT_TEMPERATURE"     env-default:"1"`
		Timeout        time.Duration `json:"timeout"         toml:"timeout"         env:"SUPPORT_TIMEOUT"         env-default:"60s"`
	}
)

const (
	// legacyAPIKeyEnv is where the hosted demo kept the provider credential.
	legacyAPIKeyEnv = "API_KEY"

	devEnvironment   = "dev"
	defaultJWTSecret = "whitetriangle-dev-secret"
)

var ErrInsecureJWTSecret = errors.New("JWT_SECRET must be set to a non-default value outside the dev environment")

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// .env is a convenience for local runs, missing file is fine
	_ = godotenv.Load()

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	if cfg.Support.APIKey == "" {
		cfg.Support.APIKey = os.Getenv(legacyAPIKeyEnv)
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.App.Environment == devEnvironment {
		return nil
	}
	if cfg.Auth.JWTSecret == "" || cfg.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("config error: %w (environment %q)", ErrInsecureJWTSecret, cfg.App.Environment)
	}
	return nil
}
