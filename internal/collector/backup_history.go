package collector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GreengageDB/greengage-exporter/internal/log"
	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// backupHistoryQuery picks the most recent backup row per (database, incremental) pair using a
// window function rather than GROUP BY + MAX, so ties on end_time resolve deterministically by
// rowid rather than arbitrarily (see the gp-backup-history Open Question decision).
const backupHistoryQuery = `
SELECT database, incremental, status, duration_seconds
FROM (
	SELECT
		database,
		incremental,
		status,
		duration_seconds,
		ROW_NUMBER() OVER (
			PARTITION BY database, incremental
			ORDER BY end_time DESC, rowid DESC
		) AS rn
	FROM backup_history
)
WHERE rn = 1
`

type backupHistoryKey struct {
	database    string
	incremental bool
	status      string
}

type backupHistoryCollector struct {
	*EntityBase[backupHistoryKey, float64]

	mu   sync.Mutex
	dsn  string
	db   *sql.DB
}

func newBackupHistoryCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	// disabled by default: requires an operator-supplied SQLite history DSN that isn't present
	// in most deployments.
	enabled := settings.IsEnabled("gp-backup-history", false) && settings.BackupHistoryDSN != ""

	c := &backupHistoryCollector{dsn: settings.BackupHistoryDSN}

	base, err := NewEntityBase(reg, EntityOptions[backupHistoryKey, float64]{
		Name:                 "gp-backup-history",
		Group:                GroupGeneral,
		Enabled:              enabled,
		ShouldFailOnError:    true,
		RemoveDeletedMetrics: true,
		CollectEntities:      c.collect,
		RegisterEntity:       registerBackupHistoryMetric,
	})
	if err != nil {
		return nil, err
	}
	c.EntityBase = base
	return c, nil
}

func registerBackupHistoryMetric(reg *registry.Registry, key backupHistoryKey, get func() (float64, bool)) ([]string, error) {
	labels := map[string]string{
		"dbname":      key.database,
		"incremental": boolLabel(key.incremental),
		"status":      key.status,
	}

	id, err := reg.RegisterGaugeFunc("greengage_backup_duration_seconds", "Duration of the most recent backup matching this (database, incremental, status) combination.",
		labels, func() float64 {
			v, ok := get()
			if !ok {
				return 0
			}
			return v
		})
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// collect ignores conn entirely: gp-backup-history reads from its own SQLite datasource rather
// than the Greenplum coordinator connection the orchestrator passes to every other collector.
func (c *backupHistoryCollector) collect(ctx context.Context, conn *store.DB, ver version.Version) (map[backupHistoryKey]float64, error) {
	db, err := c.sqliteConn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, backupHistoryQuery)
	if err != nil {
		return nil, fmt.Errorf("gp-backup-history: query: %w", err)
	}
	defer rows.Close()

	out := map[backupHistoryKey]float64{}
	for rows.Next() {
		var database, status string
		var incremental int
		var duration float64
		if err := rows.Scan(&database, &incremental, &status, &duration); err != nil {
			return nil, fmt.Errorf("gp-backup-history: scan: %w", err)
		}
		key := backupHistoryKey{database: database, incremental: incremental != 0, status: status}
		out[key] = duration
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *backupHistoryCollector) sqliteConn() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db, nil
	}

	db, err := sql.Open("sqlite3", c.dsn)
	if err != nil {
		return nil, fmt.Errorf("gp-backup-history: open %s: %w", c.dsn, err)
	}
	db.SetMaxOpenConns(1)
	c.db = db
	log.Infof("gp-backup-history: opened sqlite datasource %s", c.dsn)
	return db, nil
}
