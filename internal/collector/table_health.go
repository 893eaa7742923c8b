package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// tableHealthQuery reports an approximate bloat ratio per relation using catalog page counts,
// deliberately avoiding the expensive pgstattuple extension.
const tableHealthQuery = `
SELECT
	n.nspname AS schema,
	c.relname AS relation,
	pg_relation_size(c.oid) AS size_bytes,
	GREATEST(c.relpages, 1)::float8 /
		GREATEST((pg_relation_size(c.oid) / current_setting('block_size')::float8), 1) AS page_ratio
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r' AND n.nspname NOT IN ('pg_catalog', 'information_schema')
`

type tableKey struct {
	database string
	schema   string
	relation string
}

type tableHealthInfo struct {
	sizeBytes float64
	bloat     float64
}

type tableHealthCollector struct {
	*EntityBase[tableKey, tableHealthInfo]
	database string
}

func newTableHealthCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	// table-health is a deprecated, opt-in collector: disabled unless explicitly turned on.
	enabled := settings.IsEnabled("table-health", false)

	base, err := NewEntityBase(reg, EntityOptions[tableKey, tableHealthInfo]{
		Name:              "table-health",
		Group:             GroupPerDB,
		Enabled:           enabled,
		ShouldFailOnError: false,
		CollectEntities:   collectTableHealth,
		RegisterEntity:    registerTableHealthMetrics,
	})
	if err != nil {
		return nil, err
	}
	return &tableHealthCollector{EntityBase: base}, nil
}

func registerTableHealthMetrics(reg *registry.Registry, key tableKey, get func() (tableHealthInfo, bool)) ([]string, error) {
	labels := map[string]string{"dbname": key.database, "schema": key.schema, "relation": key.relation}

	var ids []string

	id, err := reg.RegisterGaugeFunc("greengage_table_size_bytes", "On-disk size of a table's heap, in bytes.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return info.sizeBytes
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_table_bloat_state", "Approximate table bloat classification (0 none, 1 moderate, 2 severe).", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return BloatState(info.bloat)
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	return ids, nil
}

func collectTableHealth(ctx context.Context, conn *store.DB, ver version.Version) (map[tableKey]tableHealthInfo, error) {
	res, err := conn.Query(ctx, tableHealthQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[tableKey]tableHealthInfo, res.Nrows)
	for _, row := range res.Rows {
		key := tableKey{
			database: conn.Database(),
			schema:   row[0].String,
			relation: row[1].String,
		}
		out[key] = tableHealthInfo{
			sizeBytes: atofOrZero(row[2].String),
			bloat:     atofOrZero(row[3].String),
		}
	}
	return out, nil
}
