package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiresDSN(t *testing.T) {
	c := &Config{}
	assert.Error(t, c.Validate())
}

func TestValidateAppliesDefaults(t *testing.T) {
	c := &Config{Datasource: Datasource{DSN: "postgres://user@localhost/postgres"}}
	require.NoError(t, c.Validate())

	assert.Equal(t, defaultScrapeInterval, c.Scrape.Interval)
	assert.Equal(t, defaultHTTPListenAddress, c.HTTP.ListenAddress)
	assert.Equal(t, defaultLogLevel, c.LogLevel)
	assert.Equal(t, "all", c.PerDB.Mode)
	assert.Equal(t, defaultTableVacuumTupleThreshold, c.Collectors.TableVacuumTupleThreshold)
	assert.Equal(t, defaultConnectionRetryAttempts, c.Orchestrator.ConnectionRetryAttempts)
	assert.Equal(t, defaultConnectionRetryDelay, c.Orchestrator.ConnectionRetryDelay)
	require.NotNil(t, c.Orchestrator.CircuitBreakerEnabled)
	assert.True(t, *c.Orchestrator.CircuitBreakerEnabled)
	require.NotNil(t, c.PerDB.CachePools)
	assert.True(t, *c.PerDB.CachePools)
	assert.Equal(t, defaultMaxConnLifetime, c.Datasource.MaxConnLifetime)
	assert.EqualValues(t, defaultPoolMaxConns, c.Datasource.PoolMaxConns)
	assert.EqualValues(t, defaultPoolMinConns, c.Datasource.PoolMinConns)
	assert.EqualValues(t, defaultPoolInitConns, c.Datasource.PoolInitConns)
	assert.Equal(t, defaultAcquisitionTimeout, c.Datasource.AcquisitionTimeout)
}

func TestValidateHonorsExplicitCachePoolsDisabled(t *testing.T) {
	disabled := false
	c := &Config{
		Datasource: Datasource{DSN: "postgres://user@localhost/postgres"},
		PerDB:      PerDB{CachePools: &disabled},
	}
	require.NoError(t, c.Validate())
	require.NotNil(t, c.PerDB.CachePools)
	assert.False(t, *c.PerDB.CachePools)
}

func TestValidateHonorsExplicitCircuitBreakerDisabled(t *testing.T) {
	disabled := false
	c := &Config{
		Datasource:   Datasource{DSN: "postgres://user@localhost/postgres"},
		Orchestrator: OrchestratorSettings{CircuitBreakerEnabled: &disabled},
	}
	require.NoError(t, c.Validate())
	require.NotNil(t, c.Orchestrator.CircuitBreakerEnabled)
	assert.False(t, *c.Orchestrator.CircuitBreakerEnabled)
}

func TestValidateRejectsUnknownPerDBMode(t *testing.T) {
	c := &Config{Datasource: Datasource{DSN: "postgres://user@localhost/postgres"}, PerDB: PerDB{Mode: "bogus"}}
	assert.Error(t, c.Validate())
}

func TestValidateHonorsExplicitValues(t *testing.T) {
	c := &Config{
		Datasource: Datasource{DSN: "postgres://user@localhost/postgres"},
		Scrape:     Scrape{Interval: 5 * time.Second},
	}
	require.NoError(t, c.Validate())
	assert.Equal(t, 5*time.Second, c.Scrape.Interval)
}

func TestCollectorSettingsMapping(t *testing.T) {
	c := &Config{
		Datasource: Datasource{DSN: "postgres://user@localhost/postgres"},
		Collectors: Collectors{
			Enabled:          map[string]bool{"segment": false},
			BackupHistoryDSN: "/tmp/history.db",
		},
	}
	require.NoError(t, c.Validate())

	settings := c.CollectorSettings()
	assert.False(t, settings.Enabled["segment"])
	assert.Equal(t, "/tmp/history.db", settings.BackupHistoryDSN)
}
