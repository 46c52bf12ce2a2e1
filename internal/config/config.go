package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"metalwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Import    ImportConfig    `mapstructure:"import"`
	Server    ServerConfig    `mapstructure:"server"`
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
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the sequential update cadence of the run command.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ProvidersConfig groups upstream price and FX providers.
type ProvidersConfig struct {
	GoldAPI       GoldAPIConfig       `mapstructure:"goldapi"`
	MetalPriceAPI MetalPriceAPIConfig `mapstructure:"metalpriceapi"`
	ExchangeRate  ExchangeRateConfig  `mapstructure:"exchangerate"`
	Chainlink     ChainlinkConfig     `mapstructure:"chainlink"`
}

// GoldAPIConfig parameterises the gold-api.com quote provider.
type GoldAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MetalPriceAPIConfig parameterises the metalpriceapi.com provider.
// Only needed for the special instrument task; absence disables that task.
type MetalPriceAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExchangeRateConfig parameterises the exchangerate-api.com FX provider.
type ExchangeRateConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChainlinkConfig enables on-chain aggregator quotes for selected symbols.
type ChainlinkConfig struct {
	RPCURL         string            `mapstructure:"rpc_url"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	Feeds          map[string]string `mapstructure:"feeds"`
}

// InstrumentConfig maps a symbol to its display name.
type InstrumentConfig struct {
	Symbol string `mapstructure:"symbol"`
	Name   string `mapstructure:"name"`
}

// TrackingConfig lists the instruments and currencies under watch.
type TrackingConfig struct {
	Commodities   []InstrumentConfig `mapstructure:"commodities"`
	SpecialSymbol string             `mapstructure:"special_symbol"`
	SpecialName   string             `mapstructure:"special_name"`
	Currencies    []string           `mapstructure:"currencies"`
}

// AlertingConfig defines alert evaluation and routing.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	AdvisoryLockKey int64          `mapstructure:"advisory_lock_key"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ImportColumnConfig maps a CSV column to an instrument.
type ImportColumnConfig struct {
	Column string `mapstructure:"column"`
	Symbol string `mapstructure:"symbol"`
	Name   string `mapstructure:"name"`
}

// ImportConfig governs the CSV backfill importer.
type ImportConfig struct {
	TimeColumn string               `mapstructure:"time_column"`
	TimeFormat string               `mapstructure:"time_format"`
	Columns    []ImportColumnConfig `mapstructure:"columns"`
}

// ServerConfig sets the HTTP trigger surface.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METALWATCH")
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
	v.SetDefault("app.name", "metalwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("providers.goldapi.base_url", "https://api.gold-api.com")
	v.SetDefault("providers.goldapi.request_timeout", "10s")
	v.SetDefault("providers.goldapi.user_agent", "metalwatch/1.0")

	v.SetDefault("providers.metalpriceapi.base_url", "https://api.metalpriceapi.com/v1")
	v.SetDefault("providers.metalpriceapi.request_timeout", "10s")

	v.SetDefault("providers.exchangerate.base_url", "https://v6.exchangerate-api.com")
	v.SetDefault("providers.exchangerate.request_timeout", "12s")

	v.SetDefault("providers.chainlink.request_timeout", "10s")

	v.SetDefault("tracking.commodities", []map[string]any{
		{"symbol": "XAU", "name": "Gold"},
		{"symbol": "XAG", "name": "Silver"},
		{"symbol": "XPD", "name": "Palladium"},
		{"symbol": "BTC", "name": "Bitcoin"},
		{"symbol": "HG", "name": "Copper (per pound)"},
	})
	v.SetDefault("tracking.special_symbol", "XPT")
	v.SetDefault("tracking.special_name", "Platinum")
	v.SetDefault("tracking.currencies", []string{"GBP", "EUR", "CNY", "JPY", "RUB"})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.advisory_lock_key", int64(0x6d774c4b))
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")

	v.SetDefault("import.time_column", "time")
	v.SetDefault("import.time_format", "2006-01-02 15:04:05")
	v.SetDefault("import.columns", []map[string]any{
		{"column": "XAUUSD", "symbol": "XAU", "name": "Gold"},
		{"column": "XAGUSD", "symbol": "XAG", "name": "Silver"},
		{"column": "XPDUSD", "symbol": "XPD", "name": "Palladium"},
		{"column": "XPTUSD", "symbol": "XPT", "name": "Platinum"},
	})

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if len(c.Tracking.Commodities) == 0 {
		return fmt.Errorf("tracking.commodities must not be empty")
	}
	for _, inst := range c.Tracking.Commodities {
		if inst.Symbol == "" {
			return fmt.Errorf("tracking.commodities entries require a symbol")
		}
	}
	if c.Import.TimeColumn == "" {
		return fmt.Errorf("import.time_column must not be empty")
	}
	if c.Import.TimeFormat == "" {
		return fmt.Errorf("import.time_format must not be empty")
	}
	if c.Alerting.Telegram.BotToken != "" && c.Alerting.Telegram.ChatID == "" {
		return fmt.Errorf("alerting.telegram.chat_id 必须配置")
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

// CommodityName resolves a display name for a tracked symbol, falling back to
// the symbol itself for instruments that only exist in imported history.
func (c *Config) CommodityName(symbol string) string {
	for _, inst := range c.Tracking.Commodities {
		if inst.Symbol == symbol {
			return inst.Name
		}
	}
	if symbol == c.Tracking.SpecialSymbol && c.Tracking.SpecialName != "" {
		return c.Tracking.SpecialName
	}
	return symbol
}
