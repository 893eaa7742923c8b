package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const dbVacuumQuery = `
SELECT
	datname,
	age(datfrozenxid) AS transaction_age
FROM pg_database
WHERE datallowconn AND NOT datistemplate
`

type dbVacuumCollector struct {
	*EntityBase[string, float64]
}

func newDBVacuumCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("db-vacuum-statistics", true)

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:              "db-vacuum-statistics",
		Group:             GroupPerDB,
		Enabled:           enabled,
		ShouldFailOnError: true,
		CollectEntities:   collectDBVacuum,
		RegisterEntity:    registerDBVacuumMetric,
	})
	if err != nil {
		return nil, err
	}
	return &dbVacuumCollector{base}, nil
}

func registerDBVacuumMetric(reg *registry.Registry, dbname string, get func() (float64, bool)) ([]string, error) {
	id, err := reg.RegisterGaugeFunc("greengage_database_transaction_age", "Transaction ID age of a database's datfrozenxid, an early-warning signal for wraparound.",
		map[string]string{"dbname": dbname}, func() float64 {
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

func collectDBVacuum(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
	res, err := conn.Query(ctx, dbVacuumQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, res.Nrows)
	for _, row := range res.Rows {
		out[row[0].String] = atofOrZero(row[1].String)
	}
	return out, nil
}
