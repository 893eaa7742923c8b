package collector

import (
	"context"
	"fmt"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const extendedLockedSessionsQuery = `
SELECT
	coalesce(d.datname, 'unknown') AS database,
	l.locktype,
	l.mode,
	coalesce(l.gp_segment_id, -1) AS segment,
	count(*) AS total
FROM pg_locks l
LEFT JOIN pg_database d ON d.oid = l.database
WHERE NOT l.granted
GROUP BY d.datname, l.locktype, l.mode, l.gp_segment_id
`

type extendedLockKey struct {
	database string
	lockType string
	mode     string
	segment  int
}

type extendedLockedSessionsCollector struct {
	*EntityBase[extendedLockKey, float64]
}

func newExtendedLockedSessionsCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("extended-locked-sessions", true)

	base, err := NewEntityBase(reg, EntityOptions[extendedLockKey, float64]{
		Name:                 "extended-locked-sessions",
		Group:                GroupGeneral,
		Enabled:              enabled,
		ShouldFailOnError:    true,
		RemoveDeletedMetrics: true,
		CollectEntities:      collectExtendedLockedSessions,
		RegisterEntity:       registerExtendedLockedSessionMetric,
	})
	if err != nil {
		return nil, err
	}
	return &extendedLockedSessionsCollector{base}, nil
}

func registerExtendedLockedSessionMetric(reg *registry.Registry, key extendedLockKey, get func() (float64, bool)) ([]string, error) {
	labels := map[string]string{
		"database":  key.database,
		"lock_type": key.lockType,
		"mode":      key.mode,
		"segment":   itoa(key.segment),
	}

	id, err := reg.RegisterGaugeFunc("greengage_locks_waiting_detail", "Non-granted locks broken down by database, lock type, mode and segment.",
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

func collectExtendedLockedSessions(ctx context.Context, conn *store.DB, ver version.Version) (map[extendedLockKey]float64, error) {
	res, err := conn.Query(ctx, extendedLockedSessionsQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[extendedLockKey]float64, res.Nrows)
	for _, row := range res.Rows {
		lockType := row[1].String
		mode := row[2].String
		if lockType == "" || mode == "" {
			return nil, fmt.Errorf("extended-locked-sessions: empty lock type or mode in result set")
		}

		key := extendedLockKey{
			database: row[0].String,
			lockType: lockType,
			mode:     mode,
			segment:  atoiOrZero(row[3].String),
		}
		out[key] = atofOrZero(row[4].String)
	}
	return out, nil
}
