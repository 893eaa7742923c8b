package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// diskPerHostQuery reports each primary segment's data-directory free space, as published by
// gp_toolkit (content -1 covers the coordinator itself).
const diskPerHostQuery = `
SELECT
	seg.hostname,
	d.dfspace AS free_bytes
FROM gp_toolkit.gp_disk_free d
JOIN gp_segment_configuration seg ON seg.dbid = d.dfsegment
WHERE seg.role = 'p'
`

type diskPerHostCollector struct {
	*EntityBase[string, float64]
}

func newDiskPerHostCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("disk-per-host", true)

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:              "disk-per-host",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: false,
		CollectEntities:   collectDiskPerHost,
		RegisterEntity:    registerDiskPerHostMetric,
		RegisterAggregate: registerDiskSkewMetric,
	})
	if err != nil {
		return nil, err
	}
	return &diskPerHostCollector{base}, nil
}

func registerDiskPerHostMetric(reg *registry.Registry, hostname string, get func() (float64, bool)) ([]string, error) {
	id, err := reg.RegisterGaugeFunc("greengage_disk_free_bytes_per_host", "Free space on a segment host's data directory, in bytes.",
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

func registerDiskSkewMetric(reg *registry.Registry, all func() map[string]float64) error {
	_, err := reg.RegisterGaugeFunc("greengage_disk_free_bytes_skew_ratio", "Ratio of the most-free host's free space to the cluster average.", nil,
		func() float64 { return skewRatio(all()) })
	return err
}

func collectDiskPerHost(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
	res, err := conn.Query(ctx, diskPerHostQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, res.Nrows)
	for _, row := range res.Rows {
		out[row[0].String] = atofOrZero(row[1].String)
	}
	return out, nil
}
