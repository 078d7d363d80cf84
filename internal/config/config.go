package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Yahiasherif002/stock-alerts-project/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ingest    LoopConfig      `mapstructure:"ingest"`
	Evaluate  LoopConfig      `mapstructure:"evaluate"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Symbols   []SymbolConfig  `mapstructure:"symbols"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// AdvisoryLockKey guards against two engines sharing one database.
	// Zero disables the guard.
	AdvisoryLockKey int64 `mapstructure:"advisory_lock_key"`
}

// LoopConfig governs one recurring cycle (ingestion or evaluation).
type LoopConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Workers         int           `mapstructure:"workers"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"`
}

// ProvidersConfig describes upstream quote sources and failover order.
type ProvidersConfig struct {
	Order          []string            `mapstructure:"order"`
	Cooldown       time.Duration       `mapstructure:"cooldown"`
	RequestTimeout time.Duration       `mapstructure:"request_timeout"`
	UserAgent      string              `mapstructure:"user_agent"`
	TwelveData     ProviderCredentials `mapstructure:"twelvedata"`
	FMP            ProviderCredentials `mapstructure:"fmp"`
	AlphaVantage   ProviderCredentials `mapstructure:"alphavantage"`
}

// ProviderCredentials holds per-provider access settings.
type ProviderCredentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// DispatchConfig tunes trigger delivery retries.
type DispatchConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// NotifyConfig selects the delivery channel.
type NotifyConfig struct {
	Channel  string         `mapstructure:"channel"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SymbolConfig is one tracked symbol.
type SymbolConfig struct {
	Symbol string `mapstructure:"symbol"`
	Name   string `mapstructure:"name"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockalerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x73746b61))

	v.SetDefault("ingest.interval", "3m")
	v.SetDefault("ingest.align_to_interval", true)
	v.SetDefault("ingest.startup_delay", "0s")
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.cycle_timeout", "2m")

	v.SetDefault("evaluate.interval", "2m")
	v.SetDefault("evaluate.align_to_interval", false)
	v.SetDefault("evaluate.startup_delay", "10s")
	v.SetDefault("evaluate.workers", 4)
	v.SetDefault("evaluate.cycle_timeout", "90s")

	v.SetDefault("providers.order", []string{"twelvedata", "fmp"})
	v.SetDefault("providers.cooldown", "5m")
	v.SetDefault("providers.request_timeout", "10s")
	v.SetDefault("providers.user_agent", "stockalerts/1.0")

	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.initial_backoff", "2s")
	v.SetDefault("dispatch.max_backoff", "30s")

	v.SetDefault("notify.channel", "console")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("symbols", defaultSymbols())

	v.SetDefault("export.max_data_points", 100000)
}

func defaultSymbols() []map[string]string {
	return []map[string]string{
		{"symbol": "AAPL", "name": "Apple Inc."},
		{"symbol": "GOOGL", "name": "Alphabet Inc."},
		{"symbol": "MSFT", "name": "Microsoft Corporation"},
		{"symbol": "TSLA", "name": "Tesla Inc."},
		{"symbol": "AMZN", "name": "Amazon.com Inc."},
		{"symbol": "META", "name": "Meta Platforms Inc."},
		{"symbol": "NVDA", "name": "NVIDIA Corporation"},
		{"symbol": "NFLX", "name": "Netflix Inc."},
		{"symbol": "AMD", "name": "Advanced Micro Devices Inc."},
		{"symbol": "UBER", "name": "Uber Technologies Inc."},
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var knownProviders = map[string]bool{
	"twelvedata":   true,
	"fmp":          true,
	"alphavantage": true,
}

var knownChannels = map[string]bool{
	"console":  true,
	"telegram": true,
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest.interval must be greater than zero")
	}
	if c.Evaluate.Interval <= 0 {
		return fmt.Errorf("evaluate.interval must be greater than zero")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be greater than zero")
	}
	if c.Evaluate.Workers <= 0 {
		return fmt.Errorf("evaluate.workers must be greater than zero")
	}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("providers.order must name at least one provider")
	}
	for _, name := range c.Providers.Order {
		if !knownProviders[name] {
			return fmt.Errorf("providers.order contains unknown provider %q", name)
		}
	}
	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch.max_attempts must be at least 1")
	}
	if !knownChannels[c.Notify.Channel] {
		return fmt.Errorf("notify.channel %q is not supported", c.Notify.Channel)
	}
	if c.Notify.Channel == "telegram" {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	}
	for _, sym := range c.Symbols {
		if strings.TrimSpace(sym.Symbol) == "" {
			return fmt.Errorf("symbols entries must have a non-empty symbol")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
