package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig basic application info
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP listener settings
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// LumberjackConfig rolling log file (lumberjack) settings
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig log level and output
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus exposition
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// APIAuthConfig admin API key protection
type APIAuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// APIConfig admin API settings
type APIConfig struct {
	Auth APIAuthConfig `mapstructure:"auth"`
}

// ACSConfig TR-069 ACS connection settings.
// ServerFilter=false is for ACS builds that ignore the query parameter;
// the resolver then falls back to scanning the cached collection.
type ACSConfig struct {
	BaseURL          string        `mapstructure:"baseURL"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Retries          int           `mapstructure:"retries"`
	RatePerSec       int           `mapstructure:"ratePerSec"`
	Burst            int           `mapstructure:"burst"`
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerTimeout   time.Duration `mapstructure:"breakerTimeout"`
	ServerFilter     bool          `mapstructure:"serverFilter"`
}

// ResolverConfig cascade timeouts and the full-scan guard rail
type ResolverConfig struct {
	ExactTimeout    time.Duration `mapstructure:"exactTimeout"`
	OrTimeout       time.Duration `mapstructure:"orTimeout"`
	RegexTimeout    time.Duration `mapstructure:"regexTimeout"`
	ScanTimeout     time.Duration `mapstructure:"scanTimeout"`
	OverallDeadline time.Duration `mapstructure:"overallDeadline"`
	FullScanCeiling int           `mapstructure:"fullScanCeiling"`
	PathTablePath   string        `mapstructure:"pathTablePath"`
}

// CacheConfig device collection cache
type CacheConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	FetchTimeout time.Duration `mapstructure:"fetchTimeout"`
	// WarmSpec cron spec for background refresh, empty disables it
	WarmSpec string `mapstructure:"warmSpec"`
}

// BillingConfig customer store
type BillingConfig struct {
	Driver     string `mapstructure:"driver"` // sqlite | postgres
	SQLitePath string `mapstructure:"sqlitePath"`
	DSN        string `mapstructure:"dsn"`
}

// RedisConfig optional Redis, used for shared confirmation state
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// ConfirmConfig pending confirmation expiry
type ConfirmConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	PurgeSpec string        `mapstructure:"purgeSpec"`
}

// ChatConfig WhatsApp gateway webhook and send API
type ChatConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	WebhookToken string        `mapstructure:"webhookToken"`
	GatewayURL   string        `mapstructure:"gatewayURL"`
	GatewayToken string        `mapstructure:"gatewayToken"`
	SendTimeout  time.Duration `mapstructure:"sendTimeout"`
	AdminPhones  []string      `mapstructure:"adminPhones"`
}

// Config top-level configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	API      APIConfig      `mapstructure:"api"`
	ACS      ACSConfig      `mapstructure:"acs"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Confirm  ConfirmConfig  `mapstructure:"confirm"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

// Load reads configuration from a YAML/TOML/JSON file plus environment.
// An empty path falls back to ISPOPS_CONFIG, then configs/example.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("ISPOPS_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// ISPOPS_ACS_BASEURL overrides acs.baseURL, and so on
	v.SetEnvPrefix("ISPOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// running without a config file is fine, defaults + env apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "isp-ops")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "35s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/isp-ops.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("api.auth.enabled", false)

	v.SetDefault("acs.baseURL", "http://localhost:7557")
	v.SetDefault("acs.username", "")
	v.SetDefault("acs.password", "")
	v.SetDefault("acs.timeout", "15s")
	v.SetDefault("acs.retries", 2)
	v.SetDefault("acs.ratePerSec", 20)
	v.SetDefault("acs.burst", 40)
	v.SetDefault("acs.breakerThreshold", 5)
	v.SetDefault("acs.breakerTimeout", "30s")
	v.SetDefault("acs.serverFilter", true)

	v.SetDefault("resolver.exactTimeout", "3s")
	v.SetDefault("resolver.orTimeout", "5s")
	v.SetDefault("resolver.regexTimeout", "8s")
	v.SetDefault("resolver.scanTimeout", "15s")
	v.SetDefault("resolver.overallDeadline", "30s")
	v.SetDefault("resolver.fullScanCeiling", 50)
	v.SetDefault("resolver.pathTablePath", "")

	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("cache.fetchTimeout", "15s")
	v.SetDefault("cache.warmSpec", "")

	v.SetDefault("billing.driver", "sqlite")
	v.SetDefault("billing.sqlitePath", "data/billing.db")
	v.SetDefault("billing.dsn", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("confirm.ttl", "60s")
	v.SetDefault("confirm.purgeSpec", "@every 1m")

	v.SetDefault("chat.enabled", false)
	v.SetDefault("chat.sendTimeout", "10s")
	v.SetDefault("chat.webhookToken", "")
	v.SetDefault("chat.gatewayURL", "")
	v.SetDefault("chat.gatewayToken", "")
}
