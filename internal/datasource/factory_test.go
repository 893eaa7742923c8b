package datasource

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDatabaseName(t *testing.T) {
	assert.NoError(t, ValidateDatabaseName("analytics_db"))
	assert.NoError(t, ValidateDatabaseName("my-db"))

	assert.Error(t, ValidateDatabaseName(""))
	assert.Error(t, ValidateDatabaseName("db with spaces"))
	assert.Error(t, ValidateDatabaseName("db;drop table"))
	assert.Error(t, ValidateDatabaseName(strings.Repeat("a", 64)))
}

func TestNewFactoryRejectsInvalidDSN(t *testing.T) {
	_, err := NewFactory("not-a-dsn :://", 0)
	assert.Error(t, err)
}

func TestNewFactoryDefaultsLifetime(t *testing.T) {
	f, err := NewFactory("postgres://user@localhost/postgres", 0)
	assert.NoError(t, err)
	assert.NotZero(t, f.maxConnLifetime)
}
