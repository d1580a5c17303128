// Package config loads the ape service's configuration via viper, the way
// internal/auth/config does: defaults set first, environment variables
// layered on top, an optional YAML file providing the rest.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete ape configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Estimator  EstimatorConfig  `mapstructure:"estimator"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the Postgres connection pool backing the State
// Store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the lib/pq connection string from the configured fields.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// EstimatorConfig configures the Estimator's tunable constants. The
// binaries copy the history, calibration, retry and search-space fields
// onto the Estimator; DefaultCStartup, DefaultAlphaP and DefaultAlphaK are
// loaded but not applied: new tasks are always seeded with the domain
// package's DefaultCStartup/DefaultAlphaP/DefaultAlphaK constants.
type EstimatorConfig struct {
	DefaultCStartup         float64 `mapstructure:"default_c_startup"`
	DefaultAlphaP           float64 `mapstructure:"default_alpha_p"`
	DefaultAlphaK           float64 `mapstructure:"default_alpha_k"`
	HistoryWindow           int     `mapstructure:"history_window"`
	CalibrationHistoryLimit int     `mapstructure:"calibration_history_limit"`
	CalibrationS            int     `mapstructure:"calibration_s"`
	MaxRetries              int     `mapstructure:"max_retries"`
	SaturatedSearchSpace    int     `mapstructure:"saturated_search_space"`
	SearchSpaceFloor        int     `mapstructure:"search_space_floor"`
	SearchSpaceScale        float64 `mapstructure:"search_space_scale"`
}

// LoggingConfig holds logging settings. Neither binary applies them:
// both build their pkg/logger logger with logger.New and its defaults.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MonitoringConfig configures the Prometheus metrics endpoint.
type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoadConfig loads configuration from an optional YAML file (searched in
// ./cmd/ape-server/config, ./config and .) plus APE_-prefixed environment variables, falling back
// to setDefaults for anything neither supplies.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./cmd/ape-server/config")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("APE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "15s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "ape")
	viper.SetDefault("database.user", "ape")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("estimator.default_c_startup", 6.0)
	viper.SetDefault("estimator.default_alpha_p", 0.7)
	viper.SetDefault("estimator.default_alpha_k", 0.8)
	viper.SetDefault("estimator.history_window", 50)
	viper.SetDefault("estimator.calibration_history_limit", 10)
	viper.SetDefault("estimator.calibration_s", 5)
	viper.SetDefault("estimator.max_retries", 3)
	viper.SetDefault("estimator.saturated_search_space", 50)
	viper.SetDefault("estimator.search_space_floor", 15)
	viper.SetDefault("estimator.search_space_scale", 1.5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.port", 9090)
	viper.SetDefault("monitoring.path", "/metrics")
}
