package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// activeQueryDurationQuery buckets currently-running queries by elapsed wall time.
const activeQueryDurationQuery = `
SELECT
	count(*) FILTER (WHERE now() - query_start < interval '1 second')                                AS under_1s,
	count(*) FILTER (WHERE now() - query_start >= interval '1 second' AND now() - query_start < interval '10 seconds') AS s_1_10,
	count(*) FILTER (WHERE now() - query_start >= interval '10 seconds' AND now() - query_start < interval '1 minute') AS s_10_60,
	count(*) FILTER (WHERE now() - query_start >= interval '1 minute' AND now() - query_start < interval '10 minutes') AS m_1_10,
	count(*) FILTER (WHERE now() - query_start >= interval '10 minutes')                              AS over_10m
FROM pg_stat_activity
WHERE state = 'active' AND pid != pg_backend_pid()
`

// activeQueryDurationBuckets are the fixed bucket labels in query order, matching the SELECT
// columns of activeQueryDurationQuery positionally.
var activeQueryDurationBuckets = []string{"lt_1s", "1s_10s", "10s_1m", "1m_10m", "gt_10m"}

type activeQueryDurationCollector struct {
	*EntityBase[string, float64]
}

func newActiveQueryDurationCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("active-query-duration", true)

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:              "active-query-duration",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: false,
		CollectEntities:   collectActiveQueryDuration,
		RegisterEntity:    registerActiveQueryDurationMetric,
	})
	if err != nil {
		return nil, err
	}
	return &activeQueryDurationCollector{base}, nil
}

func registerActiveQueryDurationMetric(reg *registry.Registry, bucket string, get func() (float64, bool)) ([]string, error) {
	id, err := reg.RegisterGaugeFunc("greengage_active_query_duration_bucket", "Number of currently active queries in a fixed wall-time duration bucket.",
		map[string]string{"bucket": bucket}, func() float64 {
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

func collectActiveQueryDuration(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
	row := conn.QueryRow(ctx, activeQueryDurationQuery)

	values := make([]int64, len(activeQueryDurationBuckets))
	ptrs := make([]interface{}, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(activeQueryDurationBuckets))
	for i, bucket := range activeQueryDurationBuckets {
		out[bucket] = float64(values[i])
	}
	return out, nil
}
