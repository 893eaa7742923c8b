package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const connectionsByStateQuery = `
SELECT coalesce(state, 'unknown') AS state, count(*) AS total
FROM pg_stat_activity
WHERE pid != pg_backend_pid()
GROUP BY state
`

type connectionsCollector struct {
	*EntityBase[string, float64]
}

func newConnectionsCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("connections-by-state", true)

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:              "connections-by-state",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: true,
		CollectEntities:   collectConnectionsByState,
		RegisterEntity:    registerConnectionsByStateMetric,
	})
	if err != nil {
		return nil, err
	}
	return &connectionsCollector{base}, nil
}

func registerConnectionsByStateMetric(reg *registry.Registry, state string, get func() (float64, bool)) ([]string, error) {
	id, err := reg.RegisterGaugeFunc("greengage_connections_in_state", "Number of backends in a given state.",
		map[string]string{"state": state}, func() float64 {
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

func collectConnectionsByState(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
	res, err := conn.Query(ctx, connectionsByStateQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, res.Nrows)
	for _, row := range res.Rows {
		out[row[0].String] = atofOrZero(row[1].String)
	}
	return out, nil
}
