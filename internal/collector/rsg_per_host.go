package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// rsgPerHostQueryV7 reads the v7 resource-group status view, which renamed a handful of columns
// relative to v6 (group_name vs groupname, cpu_usage vs cpu_percentage).
const rsgPerHostQueryV7 = `
SELECT
	seg.hostname,
	s.group_name,
	s.cpu_usage,
	s.memory_usage
FROM gp_toolkit.gp_resgroup_status_per_host s
JOIN gp_segment_configuration seg ON seg.content = s.segment_id AND seg.role = 'p'
`

const rsgPerHostQueryV6 = `
SELECT
	seg.hostname,
	s.groupname,
	s.cpu_percentage,
	s.memory_usage
FROM gp_toolkit.gp_resgroup_status_per_host s
JOIN gp_segment_configuration seg ON seg.content = s.segment_id AND seg.role = 'p'
`

type rsgKey struct {
	hostname      string
	resourceGroup string
}

type rsgInfo struct {
	cpuUsage    float64
	memoryUsage float64
}

type rsgPerHostCollector struct {
	*EntityBase[rsgKey, rsgInfo]
}

func newResourceGroupPerHostCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("rsg-per-host", true)

	base, err := NewEntityBase(reg, EntityOptions[rsgKey, rsgInfo]{
		Name:              "rsg-per-host",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: true,
		CollectEntities:   collectResourceGroupPerHost,
		RegisterEntity:    registerResourceGroupPerHostMetrics,
	})
	if err != nil {
		return nil, err
	}
	return &rsgPerHostCollector{base}, nil
}

func registerResourceGroupPerHostMetrics(reg *registry.Registry, key rsgKey, get func() (rsgInfo, bool)) ([]string, error) {
	labels := map[string]string{"hostname": key.hostname, "resource_group": key.resourceGroup}

	var ids []string

	id, err := reg.RegisterGaugeFunc("greengage_resource_group_cpu_usage_ratio", "Resource group CPU usage as a fraction of its quota, per host.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return info.cpuUsage
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_resource_group_memory_usage_bytes", "Resource group memory usage, per host.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return info.memoryUsage
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	return ids, nil
}

func collectResourceGroupPerHost(ctx context.Context, conn *store.DB, ver version.Version) (map[rsgKey]rsgInfo, error) {
	query := rsgPerHostQueryV7
	if !ver.IsAtLeastV7() {
		query = rsgPerHostQueryV6
	}

	res, err := conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make(map[rsgKey]rsgInfo, res.Nrows)
	for _, row := range res.Rows {
		key := rsgKey{hostname: row[0].String, resourceGroup: row[1].String}
		out[key] = rsgInfo{
			cpuUsage:    atofOrZero(row[2].String),
			memoryUsage: atofOrZero(row[3].String),
		}
	}
	return out, nil
}
