package collector

import (
	"context"
	"math"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// spillPerHostQuery sums per-query workfile spill size, grouped by the segment host it ran on.
const spillPerHostQuery = `
SELECT
	seg.hostname,
	sum(w.size) AS spill_bytes
FROM gp_toolkit.gp_workfile_entries w
JOIN gp_segment_configuration seg ON seg.content = w.segid AND seg.role = 'p'
GROUP BY seg.hostname
`

type spillPerHostCollector struct {
	*EntityBase[string, float64]
}

func newSpillPerHostCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("spill-per-host", true)

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:              "spill-per-host",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: true,
		CollectEntities:   collectSpillPerHost,
		RegisterEntity:    registerSpillPerHostMetric,
		RegisterAggregate: registerSpillSkewMetric,
	})
	if err != nil {
		return nil, err
	}
	return &spillPerHostCollector{base}, nil
}

func registerSpillPerHostMetric(reg *registry.Registry, hostname string, get func() (float64, bool)) ([]string, error) {
	id, err := reg.RegisterGaugeFunc("greengage_spill_bytes_per_host", "Workfile spill size in bytes, summed per segment host.",
		map[string]string{"hostname": hostname}, func() float64 {
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

func registerSpillSkewMetric(reg *registry.Registry, all func() map[string]float64) error {
	_, err := reg.RegisterGaugeFunc("greengage_spill_bytes_skew_ratio", "Ratio of the busiest host's spill size to the cluster average; 1 means perfectly balanced.", nil,
		func() float64 { return skewRatio(all()) })
	return err
}

func collectSpillPerHost(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
	res, err := conn.Query(ctx, spillPerHostQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, res.Nrows)
	for _, row := range res.Rows {
		out[row[0].String] = atofOrZero(row[1].String)
	}
	return out, nil
}

// skewRatio reports the ratio of the maximum value to the mean across a per-host metric map; 0
// when there is no data, 1 when every host reports 0.
func skewRatio(byHost map[string]float64) float64 {
	if len(byHost) == 0 {
		return 0
	}

	var sum, max float64
	for _, v := range byHost {
		sum += v
		if v > max {
			max = v
		}
	}

	mean := sum / float64(len(byHost))
	if mean == 0 {
		if max == 0 {
			return 1
		}
		return math.Inf(1)
	}
	return max / mean
}
