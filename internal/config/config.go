// Package config defines the exporter's configuration surface: scrape cadence, orchestrator
// tunables, datasource connectivity, per-database policy, and per-collector knobs, loaded from a
// YAML file and overridable by CLI flags.
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/GreengageDB/greengage-exporter/internal/collector"
	"github.com/GreengageDB/greengage-exporter/internal/datasource"
)

const (
	defaultScrapeInterval            = 15 * time.Second
	defaultHTTPListenAddress         = "127.0.0.1:8080"
	defaultLogLevel                  = "info"
	defaultVersionProbeAttempts      = 3
	defaultVersionProbeDelay         = time.Second
	defaultVersionProbeTimeout       = 5 * time.Second
	defaultScrapeCacheMaxAge         = 30 * time.Second
	defaultCollectorFailureThreshold = 3
	defaultConnectionRetryAttempts   = 3
	defaultConnectionRetryDelay      = time.Second
	defaultMaxConnLifetime           = 30 * time.Minute
	defaultPoolMaxConns              = 5
	defaultPoolMinConns              = 1
	defaultPoolInitConns             = 1
	defaultAcquisitionTimeout        = 5 * time.Second
	defaultTableVacuumTupleThreshold = 1000
	defaultPerDBMode                 = "all"
)

// Scrape configures the scheduler's cadence.
type Scrape struct {
	Interval time.Duration `yaml:"interval"`
}

// OrchestratorSettings configures the in-scrape circuit breaker and stale-cache tolerance.
type OrchestratorSettings struct {
	ScrapeCacheMaxAge         time.Duration `yaml:"scrape_cache_max_age"`
	CollectorFailureThreshold int           `yaml:"collector_failure_threshold"`
	CircuitBreakerEnabled     *bool         `yaml:"circuit_breaker_enabled"`
	ConnectionRetryAttempts   int           `yaml:"connection_retry_attempts"`
	ConnectionRetryDelay      time.Duration `yaml:"connection_retry_delay"`
	VersionProbeAttempts      int           `yaml:"version_probe_attempts"`
	VersionProbeDelay         time.Duration `yaml:"version_probe_delay"`
	VersionProbeTimeout       time.Duration `yaml:"version_probe_timeout"`
}

// Datasource configures connectivity to the coordinator.
type Datasource struct {
	DSN                string        `yaml:"dsn"`
	MaxConnLifetime    time.Duration `yaml:"max_lifetime"`
	PoolMaxConns       int32         `yaml:"pool_max"`
	PoolMinConns       int32         `yaml:"pool_min"`
	PoolInitConns      int32         `yaml:"pool_init"`
	AcquisitionTimeout time.Duration `yaml:"acquisition_timeout"`
}

// PerDB configures the per-database visitation policy for PER_DB collectors (§4.5).
type PerDB struct {
	Mode       string   `yaml:"mode"`
	DBList     []string `yaml:"db_list"`
	CachePools *bool    `yaml:"cache_pools"`
}

// Collectors configures per-collector enable flags and the handful of collector-specific knobs.
type Collectors struct {
	Enabled                   map[string]bool `yaml:"enabled"`
	TableVacuumTupleThreshold int             `yaml:"table_vacuum_statistics_tuple_threshold"`
	BackupHistoryDSN          string          `yaml:"gp_backup_history_dsn"`
}

// HTTP configures the metrics server.
type HTTP struct {
	ListenAddress string `yaml:"listen_address"`
}

// Config is the full, validated configuration surface (§6).
type Config struct {
	Scrape       Scrape               `yaml:"scrape"`
	Orchestrator OrchestratorSettings `yaml:"orchestrator"`
	Datasource   Datasource           `yaml:"datasource"`
	PerDB        PerDB                `yaml:"per_db"`
	Collectors   Collectors           `yaml:"collectors"`
	HTTP         HTTP                 `yaml:"http"`
	LogLevel     string               `yaml:"log_level"`
}

// Load reads and parses a YAML configuration file, then applies defaults and validates it.
func Load(path string) (*Config, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate fills in defaults and rejects configuration that can't be acted on.
func (c *Config) Validate() error {
	if c.Datasource.DSN == "" {
		return fmt.Errorf("config: datasource.dsn is required")
	}

	if c.Scrape.Interval <= 0 {
		c.Scrape.Interval = defaultScrapeInterval
	}
	if c.Orchestrator.ScrapeCacheMaxAge <= 0 {
		c.Orchestrator.ScrapeCacheMaxAge = defaultScrapeCacheMaxAge
	}
	if c.Orchestrator.CollectorFailureThreshold <= 0 {
		c.Orchestrator.CollectorFailureThreshold = defaultCollectorFailureThreshold
	}
	if c.Orchestrator.CircuitBreakerEnabled == nil {
		enabled := true
		c.Orchestrator.CircuitBreakerEnabled = &enabled
	}
	if c.Orchestrator.ConnectionRetryAttempts <= 0 {
		c.Orchestrator.ConnectionRetryAttempts = defaultConnectionRetryAttempts
	}
	if c.Orchestrator.ConnectionRetryDelay <= 0 {
		c.Orchestrator.ConnectionRetryDelay = defaultConnectionRetryDelay
	}
	if c.Orchestrator.VersionProbeAttempts <= 0 {
		c.Orchestrator.VersionProbeAttempts = defaultVersionProbeAttempts
	}
	if c.Orchestrator.VersionProbeDelay <= 0 {
		c.Orchestrator.VersionProbeDelay = defaultVersionProbeDelay
	}
	if c.Orchestrator.VersionProbeTimeout <= 0 {
		c.Orchestrator.VersionProbeTimeout = defaultVersionProbeTimeout
	}
	if c.Datasource.MaxConnLifetime <= 0 {
		c.Datasource.MaxConnLifetime = defaultMaxConnLifetime
	}
	if c.Datasource.PoolMaxConns <= 0 {
		c.Datasource.PoolMaxConns = defaultPoolMaxConns
	}
	if c.Datasource.PoolMinConns <= 0 {
		c.Datasource.PoolMinConns = defaultPoolMinConns
	}
	if c.Datasource.PoolInitConns <= 0 {
		c.Datasource.PoolInitConns = defaultPoolInitConns
	}
	if c.Datasource.AcquisitionTimeout <= 0 {
		c.Datasource.AcquisitionTimeout = defaultAcquisitionTimeout
	}
	if c.Collectors.TableVacuumTupleThreshold <= 0 {
		c.Collectors.TableVacuumTupleThreshold = defaultTableVacuumTupleThreshold
	}
	if c.HTTP.ListenAddress == "" {
		c.HTTP.ListenAddress = defaultHTTPListenAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.PerDB.Mode == "" {
		c.PerDB.Mode = defaultPerDBMode
	}
	if c.PerDB.CachePools == nil {
		enabled := true
		c.PerDB.CachePools = &enabled
	}

	if _, err := datasource.ParseMode(c.PerDB.Mode); err != nil {
		return err
	}

	return nil
}

// CollectorSettings adapts the loaded configuration into the collector package's Settings type.
func (c *Config) CollectorSettings() collector.Settings {
	return collector.Settings{
		Enabled:                   c.Collectors.Enabled,
		TableVacuumTupleThreshold: c.Collectors.TableVacuumTupleThreshold,
		BackupHistoryDSN:          c.Collectors.BackupHistoryDSN,
	}
}
