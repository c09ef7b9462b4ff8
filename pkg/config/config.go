// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config - главная структура конфигурации
type Config struct {
	App      AppConfig      `koanf:"app"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Tracing  TracingConfig  `koanf:"tracing"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Solver   SolverConfig   `koanf:"solver"`
	Scenario ScenarioConfig `koanf:"scenario"`
}

// AppConfig - общие настройки приложения
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // путь к файлу логов
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // количество бэкапов
	MaxAge     int    `koanf:"max_age"`     // дней
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig - настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig - настройки базы данных для истории решений
type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxConns        int           `koanf:"max_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// DSN возвращает строку подключения
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// CacheConfig - настройки кэша результатов
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // memory, redis
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// Addr возвращает адрес Redis
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SolverConfig - настройки эвристики размещения
type SolverConfig struct {
	Objective                  string  `koanf:"objective"` // combined, over-sub, changed, resources, delay
	Seed                       int64   `koanf:"seed"`
	MaxUnsuccessfulIterations  int     `koanf:"max_unsuccessful_iterations"`
	SlightWorseningThreshold   float64 `koanf:"slight_worsening_threshold"`
	SlightWorseningProbability float64 `koanf:"slight_worsening_probability"`
}

// ScenarioConfig - входные и выходные файлы одного запуска
type ScenarioConfig struct {
	Name      string   `koanf:"name"`
	Network   string   `koanf:"network"`
	Templates []string `koanf:"templates"`
	Sources   string   `koanf:"sources"`
	Fixed     string   `koanf:"fixed"`
	Previous  string   `koanf:"previous"`
	Result    string   `koanf:"result"`
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q invalid", c.Log.Level))
	}

	switch c.Solver.Objective {
	case "combined", "over-sub", "changed", "resources", "delay":
	default:
		errs = append(errs, fmt.Sprintf("solver.objective %q invalid", c.Solver.Objective))
	}
	if c.Solver.MaxUnsuccessfulIterations <= 0 {
		errs = append(errs, "solver.max_unsuccessful_iterations must be positive")
	}
	if c.Solver.SlightWorseningThreshold < 1 {
		errs = append(errs, "solver.slight_worsening_threshold must be >= 1")
	}
	if c.Solver.SlightWorseningProbability < 0 || c.Solver.SlightWorseningProbability > 1 {
		errs = append(errs, "solver.slight_worsening_probability must be within [0, 1]")
	}

	if c.Cache.Enabled {
		switch c.Cache.Driver {
		case "memory", "redis":
		default:
			errs = append(errs, fmt.Sprintf("cache.driver %q invalid", c.Cache.Driver))
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Sprintf("metrics.port %d invalid", c.Metrics.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
