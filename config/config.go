/*
Package config loads runtime settings for the server and the CLI.

PURPOSE:
  One Config struct feeds every binary. Values are layered, later layers
  winning:

    defaults ──▶ JSON file ──▶ RECORDS_* environment ──▶ command-line flags

ENVIRONMENT:
  RECORDS_PORT, RECORDS_STORE_DRIVER, RECORDS_SQLITE_PATH, RECORDS_POSTGRES_URL,
  RECORDS_REDIS_ADDR, RECORDS_REDIS_PASSWORD, RECORDS_REDIS_DB,
  RECORDS_REDIS_PREFIX, RECORDS_REDIS_TTL_SECONDS, RECORDS_CSRF_KEY,
  RECORDS_JWT_SECRET, RECORDS_CORS_ORIGINS (comma separated),
  RECORDS_LOG_LEVEL, RECORDS_LOG_FORMAT, RECORDS_LANGUAGE,
  RECORDS_GRADE_STRATEGY, RECORDS_TAHFIDZ_STRATEGY, RECORDS_PAYMENT_STRATEGY,
  RECORDS_BILLING_ENABLED, RECORDS_BILLING_INTERVAL_MINUTES,
  RECORDS_BILLING_CATEGORY, RECORDS_BILLING_AMOUNT

SEE ALSO:
  - cmd/server/main.go: Flag registration and startup
  - app/app.go: Builds stores and services from a Config
*/
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/records-engine/generic"
)

// Config holds all configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	Redis     RedisConfig     `json:"redis"`
	Log       LogConfig       `json:"log"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Billing   BillingConfig   `json:"billing"`
}

// ServerConfig covers the HTTP surface. A CSRFKey (32 bytes) enables CSRF
// protection; a JWTSecret switches identity from the X-Actor-ID header to
// bearer tokens; Demo mounts the scenario endpoints, which wipe the store.
type ServerConfig struct {
	Port         int      `json:"port"`
	CORSOrigins  []string `json:"cors_origins"`
	CSRFKey      string   `json:"csrf_key"`
	JWTSecret    string   `json:"jwt_secret"`
	RequireActor bool     `json:"require_actor"`
	Language     string   `json:"language"`
	Demo         bool     `json:"demo"`
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StoreConfig struct {
	Driver      string `json:"driver"`
	SQLitePath  string `json:"sqlite_path"`
	PostgresURL string `json:"postgres_url"`
}

// RedisConfig enables the shared invalidation sink when Addr is set.
type RedisConfig struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	Prefix     string `json:"prefix"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }
func (r RedisConfig) TTL() time.Duration { return time.Duration(r.TTLSeconds) * time.Second }

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type ReconcileConfig struct {
	GradeStrategy   generic.Strategy `json:"grade_strategy"`
	TahfidzStrategy generic.Strategy `json:"tahfidz_strategy"`
	PaymentStrategy generic.Strategy `json:"payment_strategy"`
}

type BillingConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"interval_minutes"`
	Category        string `json:"category"`
	Amount          string `json:"amount"`
}

func (b BillingConfig) Interval() time.Duration {
	return time.Duration(b.IntervalMinutes) * time.Minute
}

// AmountDecimal parses Amount. Validate guarantees it parses.
func (b BillingConfig) AmountDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(b.Amount)
	return d
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads config from a JSON file, then overrides with environment
// variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	overrideFromEnv(cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			Language:    "en",
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "records.db",
		},
		Redis: RedisConfig{
			Prefix:     "records",
			TTLSeconds: 3600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Reconcile: ReconcileConfig{
			GradeStrategy:   generic.StrategyMatched,
			TahfidzStrategy: generic.StrategyMatched,
			PaymentStrategy: generic.StrategyMatched,
		},
		Billing: BillingConfig{
			IntervalMinutes: 60,
			Category:        "spp",
			Amount:          "0",
		},
	}
}

func overrideFromEnv(cfg *Config, getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	num("RECORDS_PORT", &cfg.Server.Port)
	str("RECORDS_CSRF_KEY", &cfg.Server.CSRFKey)
	str("RECORDS_JWT_SECRET", &cfg.Server.JWTSecret)
	str("RECORDS_LANGUAGE", &cfg.Server.Language)
	if v := getenv("RECORDS_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	str("RECORDS_STORE_DRIVER", &cfg.Store.Driver)
	str("RECORDS_SQLITE_PATH", &cfg.Store.SQLitePath)
	str("RECORDS_POSTGRES_URL", &cfg.Store.PostgresURL)

	str("RECORDS_REDIS_ADDR", &cfg.Redis.Addr)
	str("RECORDS_REDIS_PASSWORD", &cfg.Redis.Password)
	num("RECORDS_REDIS_DB", &cfg.Redis.DB)
	str("RECORDS_REDIS_PREFIX", &cfg.Redis.Prefix)
	num("RECORDS_REDIS_TTL_SECONDS", &cfg.Redis.TTLSeconds)

	str("RECORDS_LOG_LEVEL", &cfg.Log.Level)
	str("RECORDS_LOG_FORMAT", &cfg.Log.Format)

	strategy := func(name string, dst *generic.Strategy) {
		if v := getenv(name); v != "" {
			*dst = generic.Strategy(v)
		}
	}
	strategy("RECORDS_GRADE_STRATEGY", &cfg.Reconcile.GradeStrategy)
	strategy("RECORDS_TAHFIDZ_STRATEGY", &cfg.Reconcile.TahfidzStrategy)
	strategy("RECORDS_PAYMENT_STRATEGY", &cfg.Reconcile.PaymentStrategy)

	boolean := func(name string, dst *bool) {
		if v := getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	boolean("RECORDS_REQUIRE_ACTOR", &cfg.Server.RequireActor)
	boolean("RECORDS_DEMO", &cfg.Server.Demo)
	boolean("RECORDS_BILLING_ENABLED", &cfg.Billing.Enabled)
	num("RECORDS_BILLING_INTERVAL_MINUTES", &cfg.Billing.IntervalMinutes)
	str("RECORDS_BILLING_CATEGORY", &cfg.Billing.Category)
	str("RECORDS_BILLING_AMOUNT", &cfg.Billing.Amount)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// FLAGS
// =============================================================================

// RegisterFlags defines the command-line overrides on fs. Defaults shown
// in -help are the built-in ones; only flags actually passed are applied.
func RegisterFlags(fs *flag.FlagSet) {
	d := Defaults()
	fs.Int("port", d.Server.Port, "HTTP server port")
	fs.String("driver", d.Store.Driver, "store driver: sqlite or postgres")
	fs.String("db", d.Store.SQLitePath, `SQLite database path (":memory:" for in-memory)`)
	fs.String("postgres-url", "", "PostgreSQL connection string")
	fs.String("redis-addr", "", "Redis address for shared invalidation (empty disables)")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: text or json")
	fs.String("lang", d.Server.Language, "default language for messages and exports")
	fs.Bool("billing", d.Billing.Enabled, "enable the monthly billing scheduler")
	fs.Bool("demo", d.Server.Demo, "mount the demo scenario endpoints (they reset the store)")
}

// ApplyFlags copies every flag that was set on fs into the config and
// re-validates.
func (c *Config) ApplyFlags(fs *flag.FlagSet) error {
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "port":
			c.Server.Port, _ = strconv.Atoi(v)
		case "driver":
			c.Store.Driver = v
		case "db":
			c.Store.SQLitePath = v
		case "postgres-url":
			c.Store.PostgresURL = v
		case "redis-addr":
			c.Redis.Addr = v
		case "log-level":
			c.Log.Level = v
		case "log-format":
			c.Log.Format = v
		case "lang":
			c.Server.Language = v
		case "billing":
			c.Billing.Enabled, _ = strconv.ParseBool(v)
		case "demo":
			c.Server.Demo, _ = strconv.ParseBool(v)
		}
	})
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.CSRFKey != "" && len(c.Server.CSRFKey) != 32 {
		return fmt.Errorf("csrf_key must be 32 bytes, got %d", len(c.Server.CSRFKey))
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid store driver %q: must be sqlite or postgres", c.Store.Driver)
	}

	if c.Redis.Enabled() && c.Redis.TTLSeconds < 1 {
		return fmt.Errorf("redis ttl_seconds must be >= 1, got %d", c.Redis.TTLSeconds)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format %q: must be text or json", c.Log.Format)
	}

	for name, s := range map[string]generic.Strategy{
		"grade_strategy":   c.Reconcile.GradeStrategy,
		"tahfidz_strategy": c.Reconcile.TahfidzStrategy,
		"payment_strategy": c.Reconcile.PaymentStrategy,
	} {
		if s != generic.StrategyMatched && s != generic.StrategyUpsert {
			return fmt.Errorf("invalid %s %q: must be matched or upsert", name, s)
		}
	}

	if c.Billing.Enabled {
		if c.Billing.IntervalMinutes < 1 {
			return fmt.Errorf("billing interval_minutes must be >= 1, got %d", c.Billing.IntervalMinutes)
		}
		if strings.TrimSpace(c.Billing.Category) == "" {
			return fmt.Errorf("billing category is required")
		}
		amount, err := decimal.NewFromString(c.Billing.Amount)
		if err != nil || !amount.IsPositive() {
			return fmt.Errorf("billing amount must be a positive number, got %q", c.Billing.Amount)
		}
	}
	return nil
}

// =============================================================================
// LOGGER
// =============================================================================

// NewLogger builds the structured logger described by the config.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
