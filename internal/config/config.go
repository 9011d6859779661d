package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

var (
	ErrMissingDSN       = errors.New("STORE_DSN is required for sql stores")
	ErrInvalidStore     = errors.New("STORE_DRIVER must be one of memory, sqlite, postgres, redis")
	ErrMissingListen    = errors.New("LISTEN_ADDR is required")
	ErrInvalidRateLimit = errors.New("RATE_LIMIT_PER_HOUR must be >= 0")
	ErrInvalidPageCache = errors.New("PAGE_CACHE_SIZE and PAGE_IDLE_TTL must be > 0")
)

type Config struct {
	HTTP     HTTPConfig
	Store    StoreConfig
	Redis    RedisConfig
	Rate     RateConfig
	Settings SettingsConfig
	Crypto   CryptoConfig
	Log      LogConfig
}

type HTTPConfig struct {
	ListenAddr      string
	HealthPath      string
	MetricsPath     string
	ClientTimeout   time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxPages        int
	PageIdleTTL     time.Duration
}

type StoreConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type RateConfig struct {
	PerHour int64
}

type SettingsConfig struct {
	Path     string
	Watch    bool
	Debounce time.Duration
}

// CryptoConfig is optional. Without keys, sealed API keys in the settings file
// cannot be opened.
type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

type LogConfig struct {
	Level string
}

// Load reads a .env file if present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr:      mustEnv("LISTEN_ADDR", ":8080"),
			HealthPath:      mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:     mustEnv("METRICS_PATH", "/metrics"),
			ClientTimeout:   mustDuration("HTTP_TIMEOUT", 120*time.Second),
			ShutdownTimeout: mustDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     mustList("CORS_ORIGINS", []string{"*"}),
			MaxPages:        mustInt("PAGE_CACHE_SIZE", 1024),
			PageIdleTTL:     mustDuration("PAGE_IDLE_TTL", 30*time.Minute),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(mustEnv("STORE_DRIVER", StoreMemory)),
			DSN:         mustEnv("STORE_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:      mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  mustEnv("REDIS_PASSWORD", ""),
			DB:        mustInt("REDIS_DB", 0),
			KeyPrefix: mustEnv("REDIS_KEY_PREFIX", "pagechat"),
		},
		Rate: RateConfig{
			PerHour: int64(mustInt("RATE_LIMIT_PER_HOUR", 0)),
		},
		Settings: SettingsConfig{
			Path:     mustEnv("SETTINGS_PATH", "settings.toml"),
			Watch:    mustBool("SETTINGS_WATCH", true),
			Debounce: mustDuration("SETTINGS_DEBOUNCE", 150*time.Millisecond),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.HTTP.ListenAddr == "" {
		return nil, ErrMissingListen
	}
	switch cfg.Store.Driver {
	case StoreMemory, StoreRedis:
	case StoreSQLite, StorePostgres:
		if cfg.Store.DSN == "" {
			return nil, ErrMissingDSN
		}
	default:
		return nil, ErrInvalidStore
	}
	if cfg.Rate.PerHour < 0 {
		return nil, ErrInvalidRateLimit
	}
	if cfg.HTTP.MaxPages <= 0 || cfg.HTTP.PageIdleTTL <= 0 {
		return nil, ErrInvalidPageCache
	}

	cc, err := loadCryptoConfig()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc

	return cfg, nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		for id := range keys {
			current = id
			break
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{CurrentKeyID: current, Keys: keys}, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustList(key string, def []string) []string {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
