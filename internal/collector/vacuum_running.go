package collector

import (
	"context"
	"fmt"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const vacuumRunningQuery = `
SELECT
	coalesce(d.datname, 'unknown') AS dbname,
	a.pid,
	coalesce(a.usename, 'unknown') AS username,
	extract(epoch FROM now() - a.query_start)::float8 AS seconds_running
FROM pg_stat_activity a
LEFT JOIN pg_database d ON d.oid = a.datid
WHERE a.query ILIKE 'vacuum%' AND a.state = 'active'
`

type vacuumKey struct {
	database string
	pid      int
	username string
}

type vacuumRunningCollector struct {
	*EntityBase[vacuumKey, float64]
}

func newVacuumRunningCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("vacuum-running", true)

	base, err := NewEntityBase(reg, EntityOptions[vacuumKey, float64]{
		Name:                 "vacuum-running",
		Group:                GroupGeneral,
		Enabled:              enabled,
		ShouldFailOnError:    true,
		RemoveDeletedMetrics: true,
		CollectEntities:      collectVacuumRunning,
		RegisterEntity:       registerVacuumRunningMetric,
	})
	if err != nil {
		return nil, err
	}
	return &vacuumRunningCollector{base}, nil
}

func registerVacuumRunningMetric(reg *registry.Registry, key vacuumKey, get func() (float64, bool)) ([]string, error) {
	labels := map[string]string{
		"dbname":   key.database,
		"pid":      itoa(key.pid),
		"username": key.username,
	}

	id, err := reg.RegisterGaugeFunc("greengage_vacuum_running_seconds", "Elapsed wall time of a currently running VACUUM, in seconds.",
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

func collectVacuumRunning(ctx context.Context, conn *store.DB, ver version.Version) (map[vacuumKey]float64, error) {
	res, err := conn.Query(ctx, vacuumRunningQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[vacuumKey]float64, res.Nrows)
	for _, row := range res.Rows {
		pid := atoiOrZero(row[1].String)
		if pid == 0 {
			return nil, fmt.Errorf("vacuum-running: empty pid in result set")
		}
		key := vacuumKey{database: row[0].String, pid: pid, username: row[2].String}
		out[key] = atofOrZero(row[3].String)
	}
	return out, nil
}
