package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Sync     SyncConfig
	Sender   SenderConfig
	CORS     CORSConfig
	Log      LogConfig
}

type ServerConfig struct {
	Address string
}

// DatabaseConfig selects the in-memory store when PostgresURL is empty.
type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type ProviderConfig struct {
	BaseURL string
	Timeout time.Duration

	// Optional seed for the settings store.
	Token string
	Phone string
}

type SyncConfig struct {
	PollInterval  time.Duration
	Tolerance     time.Duration
	BackfillDelay time.Duration
	MaxPages      int
	PageDelay     time.Duration
}

type SenderConfig struct {
	ContentMax int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level slog.Level
}

// LoadAll reads the whole configuration from the environment and reports
// every problem it finds at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		collect(err)
		return v
	}

	secret, err := requireEnv("AUTH_JWT_SECRET")
	collect(err)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: secret,
		},
		Provider: ProviderConfig{
			BaseURL: getEnv("PROVIDER_BASE_URL", "https://api.whatsiplus.com"),
			Timeout: time.Duration(intVar("PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second,
			Token:   strings.TrimSpace(os.Getenv("PROVIDER_TOKEN")),
			Phone:   strings.TrimSpace(os.Getenv("PROVIDER_PHONE")),
		},
		Sync: SyncConfig{
			PollInterval:  time.Duration(intVar("POLL_INTERVAL_SECONDS", 5)) * time.Second,
			Tolerance:     time.Duration(intVar("POLL_TOLERANCE_SECONDS", 300)) * time.Second,
			BackfillDelay: time.Duration(intVar("BACKFILL_DELAY_MS", 3000)) * time.Millisecond,
			MaxPages:      intVar("BACKFILL_MAX_PAGES", 5),
			PageDelay:     time.Duration(intVar("BACKFILL_PAGE_DELAY_MS", 200)) * time.Millisecond,
		},
		Sender: SenderConfig{
			ContentMax: intVar("CONTENT_MAX", 4096),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		},
	}

	redisCfg, err := loadRedisConfig()
	collect(err)
	cfg.Redis = redisCfg

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)
	cfg.Log.Level = level

	if len(errs) == 0 {
		errs = append(errs, validate(cfg)...)
	}
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, dbErr := getEnvInt("REDIS_DB", 0)
	ttl, ttlErr := getEnvInt("REDIS_TTL_SECONDS", 86400)

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errors.Join(dbErr, ttlErr)
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Sync.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Sync.Tolerance <= 0 {
		errs = append(errs, errors.New("POLL_TOLERANCE_SECONDS must be > 0"))
	}
	if cfg.Sync.BackfillDelay < 0 {
		errs = append(errs, errors.New("BACKFILL_DELAY_MS must be >= 0"))
	}
	if cfg.Sync.MaxPages <= 0 {
		errs = append(errs, errors.New("BACKFILL_MAX_PAGES must be > 0"))
	}
	if cfg.Sync.PageDelay < 0 {
		errs = append(errs, errors.New("BACKFILL_PAGE_DELAY_MS must be >= 0"))
	}
	if cfg.Sender.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	return errs
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL: %q", raw)
	}
	return level, nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
