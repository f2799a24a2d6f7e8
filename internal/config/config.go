package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultUpstreamURL is the BCCR economic indicators endpoint.
const DefaultUpstreamURL = "https://gee.bccr.fi.cr/Indicadores/Suscripciones/WS/wsindicadoreseconomicos.asmx/ObtenerIndicadoresEconomicos"

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	// LogOutput is "stdout" or "stderr".
	LogOutput string `mapstructure:"log_output"`

	// Endpoint is where indicator queries are sent: the relay path or the upstream itself.
	Endpoint              string        `mapstructure:"bccr_endpoint"`
	UpstreamURL           string        `mapstructure:"bccr_upstream_url"`
	RequestTimeoutSeconds int64         `mapstructure:"bccr_timeout_seconds"`
	RequestTimeout        time.Duration `mapstructure:"-"`
	SubscriberName        string        `mapstructure:"bccr_nombre"`
	DetailLevel           string        `mapstructure:"bccr_subniveles"`
	Token                 string        `mapstructure:"bccr_token"`
	Email                 string        `mapstructure:"bccr_correo"`

	RelayAddr           string   `mapstructure:"relay_addr"`
	RelayAllowedOrigins string   `mapstructure:"relay_allowed_origins"`
	RelayOrigins        []string `mapstructure:"-"`
	RelayStaticDir      string   `mapstructure:"relay_static_dir"`
	RelayRateLimitRPS   float64  `mapstructure:"relay_rate_limit_rps"`
	RelayRateLimitBurst int      `mapstructure:"relay_rate_limit_burst"`

	SeriesFile             string        `mapstructure:"series_file"`
	PublishersFile         string        `mapstructure:"publishers_file"`
	HarvestIntervalSeconds int64         `mapstructure:"harvest_interval"`
	HarvestInterval        time.Duration `mapstructure:"-"`
	HarvestSchedule        string        `mapstructure:"harvest_schedule"`
	HarvestRetries         int           `mapstructure:"harvest_retries"`
	HarvestRetryWaitMs     int64         `mapstructure:"harvest_retry_wait_ms"`
	HarvestRetryWait       time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	SQLitePath             string        `mapstructure:"sqlite_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "bccr-indicadores")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_output", "stdout")

	v.SetDefault("bccr_endpoint", DefaultUpstreamURL)
	v.SetDefault("bccr_upstream_url", DefaultUpstreamURL)
	v.SetDefault("bccr_timeout_seconds", 15)
	v.SetDefault("bccr_nombre", "")
	v.SetDefault("bccr_subniveles", "N")
	v.SetDefault("bccr_token", "")
	v.SetDefault("bccr_correo", "")

	v.SetDefault("relay_addr", ":3000")
	v.SetDefault("relay_allowed_origins", "*")
	v.SetDefault("relay_static_dir", "")
	v.SetDefault("relay_rate_limit_rps", 0)
	v.SetDefault("relay_rate_limit_burst", 5)

	v.SetDefault("series_file", "./configs/series.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("harvest_interval", 3600) // seconds
	v.SetDefault("harvest_schedule", "")
	v.SetDefault("harvest_retries", 2)
	v.SetDefault("harvest_retry_wait_ms", 500)

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/cache.db")
	v.SetDefault("sqlite_path", "./data/observations.db")
	v.SetDefault("storage_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) finalize() error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return fmt.Errorf("bccr_endpoint is required")
	}
	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return fmt.Errorf("bccr_upstream_url is required")
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid bccr_timeout_seconds (must be positive seconds)")
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	if cfg.HarvestIntervalSeconds <= 0 {
		return fmt.Errorf("invalid harvest_interval (must be positive seconds)")
	}
	cfg.HarvestInterval = time.Duration(cfg.HarvestIntervalSeconds) * time.Second
	cfg.HarvestSchedule = strings.TrimSpace(cfg.HarvestSchedule)
	if cfg.HarvestRetries < 0 || cfg.HarvestRetryWaitMs < 0 {
		return fmt.Errorf("invalid harvest retry settings (must not be negative)")
	}
	cfg.HarvestRetryWait = time.Duration(cfg.HarvestRetryWaitMs) * time.Millisecond

	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	if cfg.RelayRateLimitRPS < 0 {
		return fmt.Errorf("invalid relay_rate_limit_rps (must not be negative)")
	}
	cfg.RelayOrigins = splitList(cfg.RelayAllowedOrigins)
	if len(cfg.RelayOrigins) == 0 {
		cfg.RelayOrigins = []string{"*"}
	}
	return nil
}

// StoragePath returns the file path backing the configured storage type.
func (cfg *Config) StoragePath() string {
	if strings.EqualFold(strings.TrimSpace(cfg.StorageType), "sqlite") {
		return cfg.SQLitePath
	}
	return cfg.BBoltPath
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LogFields returns the settings worth logging at startup. Credentials are left out.
func (cfg *Config) LogFields() map[string]any {
	return map[string]any{
		"app_name":         cfg.AppName,
		"app_env":          cfg.Env,
		"log_level":        cfg.LogLevel,
		"bccr_endpoint":    cfg.Endpoint,
		"bccr_upstream":    cfg.UpstreamURL,
		"request_timeout":  cfg.RequestTimeout.String(),
		"token_configured": cfg.Token != "",
		"relay_addr":       cfg.RelayAddr,
		"series_file":      cfg.SeriesFile,
		"publishers_file":  cfg.PublishersFile,
		"harvest_interval": cfg.HarvestInterval.String(),
		"harvest_schedule": cfg.HarvestSchedule,
		"storage_type":     cfg.StorageType,
	}
}
