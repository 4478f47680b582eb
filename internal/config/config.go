package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	MinRefreshSeconds = 1
	MaxRefreshSeconds = 10
)

type Config struct {
	// Secrets (from .env)
	APIKey          string `toml:"api_key"`
	CORSAllowOrigin string `toml:"cors_allow_origin"`
	WebhookURL      string `toml:"webhook_url"`
	BotName         string `toml:"bot_name"`

	// Dashboard
	LogSourceURL           string `toml:"log_source_url"`
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"`
	AutoRefresh            bool   `toml:"auto_refresh"`
	Token0Symbol           string `toml:"token0_symbol"`
	Token1Symbol           string `toml:"token1_symbol"`
	DashboardPort          int    `toml:"dashboard_port"`
	TerminalTable          bool   `toml:"terminal_table"`

	// Trade-log server
	LogServerPort int    `toml:"log_server_port"`
	StoreBackend  string `toml:"store_backend"`

	// Database
	DBHost     string `toml:"db_host"`
	DBPort     int    `toml:"db_port"`
	DBName     string `toml:"db_name"`
	DBUser     string `toml:"db_user"`
	DBPassword string `toml:"db_password"`

	// Redis
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`

	// Blockchain
	RPCWSEndpoint          string  `toml:"rpc_ws_endpoint"`
	UniswapPoolAddress     string  `toml:"uniswap_pool_address"`
	PancakeswapPoolAddress string  `toml:"pancakeswap_pool_address"`
	PriceDifferencePercent float64 `toml:"price_difference_percent"`

	LogLevel string `toml:"log_level"`
}

// Defaults returns the built-in configuration before file and env overrides.
func Defaults() Config {
	return Config{
		BotName:         "SwapPriceMonitor",
		CORSAllowOrigin: "*",

		LogSourceURL:           "http://localhost:5001/api/trade-logs",
		RefreshIntervalSeconds: 3,
		AutoRefresh:            true,
		Token0Symbol:           "WETH",
		Token1Symbol:           "ARB",
		DashboardPort:          8501,

		LogServerPort: 5001,
		StoreBackend:  "memory",

		DBHost: "localhost",
		DBPort: 5432,
		DBName: "swap_price_monitor",

		RedisChannel: "swap-price:series",

		PriceDifferencePercent: 0.5,

		LogLevel: "info",
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// Secrets
	cfg.APIKey = envStr("API_KEY", cfg.APIKey)
	cfg.CORSAllowOrigin = envStr("CORS_ALLOW_ORIGIN", cfg.CORSAllowOrigin)
	cfg.WebhookURL = envStr("WEBHOOK_URL", cfg.WebhookURL)
	cfg.BotName = envStr("BOT_NAME", cfg.BotName)

	// Dashboard
	cfg.LogSourceURL = envStr("LOG_SOURCE_URL", cfg.LogSourceURL)
	cfg.RefreshIntervalSeconds = envInt("REFRESH_INTERVAL_SECONDS", cfg.RefreshIntervalSeconds)
	cfg.AutoRefresh = envBool("AUTO_REFRESH", cfg.AutoRefresh)
	cfg.Token0Symbol = envStr("TOKEN0_SYMBOL", cfg.Token0Symbol)
	cfg.Token1Symbol = envStr("TOKEN1_SYMBOL", cfg.Token1Symbol)
	cfg.DashboardPort = envInt("DASHBOARD_PORT", cfg.DashboardPort)
	cfg.TerminalTable = envBool("TERMINAL_TABLE", cfg.TerminalTable)

	// Trade-log server
	cfg.LogServerPort = envInt("LOG_SERVER_PORT", envInt("PORT", cfg.LogServerPort))
	cfg.StoreBackend = strings.ToLower(envStr("STORE_BACKEND", cfg.StoreBackend))

	// Database
	cfg.DBHost = envStr("DB_HOST", cfg.DBHost)
	cfg.DBPort = envInt("DB_PORT", cfg.DBPort)
	cfg.DBName = envStr("DB_NAME", cfg.DBName)
	cfg.DBUser = envStr("DB_USER", cfg.DBUser)
	cfg.DBPassword = envStr("DB_PASSWORD", cfg.DBPassword)

	// Redis
	cfg.RedisAddr = envStr("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envStr("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("REDIS_DB", cfg.RedisDB)
	cfg.RedisChannel = envStr("REDIS_CHANNEL", cfg.RedisChannel)

	// Blockchain
	cfg.RPCWSEndpoint = envStr("RPC_WS_ENDPOINT", cfg.RPCWSEndpoint)
	cfg.UniswapPoolAddress = envStr("UNISWAP_POOL_ADDRESS", cfg.UniswapPoolAddress)
	cfg.PancakeswapPoolAddress = envStr("PANCAKESWAP_POOL_ADDRESS", cfg.PancakeswapPoolAddress)
	cfg.PriceDifferencePercent = envFloat("PRICE_DIFFERENCE_PERCENT", cfg.PriceDifferencePercent)

	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)

	cfg.RefreshIntervalSeconds = ClampRefreshSeconds(cfg.RefreshIntervalSeconds)
	return &cfg, nil
}

// ClampRefreshSeconds keeps a refresh interval inside the 1..10 second range.
func ClampRefreshSeconds(n int) int {
	if n < MinRefreshSeconds {
		return MinRefreshSeconds
	}
	if n > MaxRefreshSeconds {
		return MaxRefreshSeconds
	}
	return n
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(ClampRefreshSeconds(c.RefreshIntervalSeconds)) * time.Second
}

// Validate checks the settings every command needs.
func (c *Config) Validate(log zerolog.Logger) error {
	var errs []string

	if c.LogSourceURL == "" {
		errs = append(errs, "LOG_SOURCE_URL is required")
	}
	if c.Token0Symbol == "" || c.Token1Symbol == "" {
		errs = append(errs, "TOKEN0_SYMBOL and TOKEN1_SYMBOL are required")
	}
	if c.StoreBackend != "memory" && c.StoreBackend != "postgres" {
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be memory or postgres, got %q", c.StoreBackend))
	}
	if c.StoreBackend == "postgres" && c.DBUser == "" {
		errs = append(errs, "DB_USER is required for the postgres store")
	}
	if c.APIKey == "" {
		log.Warn().Msg("API_KEY not set, REST API has no authentication")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// ValidateWatcher checks the extra settings the swap watcher needs.
func (c *Config) ValidateWatcher() error {
	var errs []string
	if c.RPCWSEndpoint == "" {
		errs = append(errs, "RPC_WS_ENDPOINT is required")
	}
	if c.UniswapPoolAddress == "" && c.PancakeswapPoolAddress == "" {
		errs = append(errs, "at least one of UNISWAP_POOL_ADDRESS and PANCAKESWAP_POOL_ADDRESS is required")
	}
	if c.PriceDifferencePercent < 0 {
		errs = append(errs, "PRICE_DIFFERENCE_PERCENT must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("watcher config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print(log zerolog.Logger) {
	log.Info().
		Str("pair", c.Token1Symbol+"/"+c.Token0Symbol).
		Str("log_source", c.LogSourceURL).
		Int("refresh_seconds", c.RefreshIntervalSeconds).
		Bool("auto_refresh", c.AutoRefresh).
		Int("dashboard_port", c.DashboardPort).
		Int("log_server_port", c.LogServerPort).
		Str("store", c.StoreBackend).
		Str("redis", boolLabel(c.RedisAddr != "", c.RedisAddr, "disabled")).
		Str("webhook", boolLabel(c.WebhookURL != "", "configured", "not set")).
		Msg("swap price monitor configuration")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
