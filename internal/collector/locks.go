package collector

import (
	"context"
	"fmt"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const lockedSessionsQuery = `
SELECT locktype, count(*) AS total
FROM pg_locks
WHERE NOT granted
GROUP BY locktype
`

type lockedSessionsCollector struct {
	*EntityBase[string, float64]
}

func newLockedSessionsCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("locked-sessions", true)

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:              "locked-sessions",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: true,
		CollectEntities:   collectLockedSessions,
		RegisterEntity:    registerLockedSessionMetric,
		RegisterAggregate: registerLockedSessionsTotal,
	})
	if err != nil {
		return nil, err
	}
	return &lockedSessionsCollector{base}, nil
}

func registerLockedSessionMetric(reg *registry.Registry, lockType string, get func() (float64, bool)) ([]string, error) {
	id, err := reg.RegisterGaugeFunc("greengage_locks_waiting", "Number of non-granted locks by lock type.",
		map[string]string{"lock_type": lockType}, func() float64 {
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

func registerLockedSessionsTotal(reg *registry.Registry, all func() map[string]float64) error {
	_, err := reg.RegisterGaugeFunc("greengage_locks_waiting_total", "Total number of non-granted locks across all lock types.", nil,
		func() float64 {
			var total float64
			for _, v := range all() {
				total += v
			}
			return total
		})
	return err
}

func collectLockedSessions(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
	res, err := conn.Query(ctx, lockedSessionsQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, res.Nrows)
	for _, row := range res.Rows {
		locktype := row[0].String
		if locktype == "" {
			return nil, fmt.Errorf("locked-sessions: empty lock type in result set")
		}
		out[locktype] = atofOrZero(row[1].String)
	}
	return out, nil
}
