package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const tableVacuumQuery = `
SELECT
	n.nspname AS schema,
	c.relname AS relation,
	s.n_dead_tup,
	s.n_live_tup,
	extract(epoch FROM now() - s.last_autovacuum)::float8 AS seconds_since_autovacuum
FROM pg_stat_user_tables s
JOIN pg_class c ON c.oid = s.relid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE s.n_dead_tup > $1
`

type tableVacuumInfo struct {
	deadTuples             float64
	liveTuples             float64
	secondsSinceAutovacuum float64
}

type tableVacuumCollector struct {
	*EntityBase[tableKey, tableVacuumInfo]
}

func newTableVacuumCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("table-vacuum-statistics", true)

	threshold := settings.TableVacuumTupleThreshold
	if threshold <= 0 {
		threshold = 1000
	}

	base, err := NewEntityBase(reg, EntityOptions[tableKey, tableVacuumInfo]{
		Name:              "table-vacuum-statistics",
		Group:             GroupPerDB,
		Enabled:           enabled,
		ShouldFailOnError: true,
		CollectEntities: func(ctx context.Context, conn *store.DB, ver version.Version) (map[tableKey]tableVacuumInfo, error) {
			return collectTableVacuum(ctx, conn, threshold)
		},
		RegisterEntity: registerTableVacuumMetrics,
	})
	if err != nil {
		return nil, err
	}
	return &tableVacuumCollector{base}, nil
}

func registerTableVacuumMetrics(reg *registry.Registry, key tableKey, get func() (tableVacuumInfo, bool)) ([]string, error) {
	labels := map[string]string{"dbname": key.database, "schema": key.schema, "relation": key.relation}

	var ids []string

	id, err := reg.RegisterGaugeFunc("greengage_table_dead_tuples", "Estimated dead tuple count for a table.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return info.deadTuples
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_table_live_tuples", "Estimated live tuple count for a table.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return info.liveTuples
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_table_seconds_since_autovacuum", "Seconds elapsed since a table was last autovacuumed.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return info.secondsSinceAutovacuum
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	return ids, nil
}

func collectTableVacuum(ctx context.Context, conn *store.DB, threshold int) (map[tableKey]tableVacuumInfo, error) {
	res, err := conn.Query(ctx, tableVacuumQuery, threshold)
	if err != nil {
		return nil, err
	}

	out := make(map[tableKey]tableVacuumInfo, res.Nrows)
	for _, row := range res.Rows {
		key := tableKey{
			database: conn.Database(),
			schema:   row[0].String,
			relation: row[1].String,
		}
		out[key] = tableVacuumInfo{
			deadTuples:             atofOrZero(row[2].String),
			liveTuples:             atofOrZero(row[3].String),
			secondsSinceAutovacuum: atofOrZero(row[4].String),
		}
	}
	return out, nil
}
