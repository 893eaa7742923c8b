package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const segmentQuery = `
SELECT
	hostname,
	dbid,
	content,
	role,
	preferred_role,
	mode,
	status,
	port
FROM gp_segment_configuration
`

type segmentKey struct {
	hostname string
	dbid     int
}

type segmentInfo struct {
	content       int
	role          string
	preferredRole string
	mode          string
	status        string
	port          int
}

type segmentCollector struct {
	*EntityBase[segmentKey, segmentInfo]
}

func newSegmentCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("segment", true)

	base, err := NewEntityBase(reg, EntityOptions[segmentKey, segmentInfo]{
		Name:              "segment",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: true,
		CollectEntities:   collectSegments,
		RegisterEntity:    registerSegmentMetrics,
	})
	if err != nil {
		return nil, err
	}
	return &segmentCollector{base}, nil
}

func registerSegmentMetrics(reg *registry.Registry, key segmentKey, get func() (segmentInfo, bool)) ([]string, error) {
	labels := map[string]string{"hostname": key.hostname, "dbid": itoa(key.dbid)}

	var ids []string

	id, err := reg.RegisterGaugeFunc("greengage_segment_status", "Segment status (1 up, 0 down).", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return EncodeSegmentStatus(info.status)
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_segment_role", "Segment current role (1 primary, 2 mirror).", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return EncodeSegmentRole(info.role)
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_segment_mode", "Segment replication mode.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return EncodeSegmentMode(info.mode)
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_segment_content", "Segment content id.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return float64(info.content)
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	return ids, nil
}

func collectSegments(ctx context.Context, conn *store.DB, ver version.Version) (map[segmentKey]segmentInfo, error) {
	res, err := conn.Query(ctx, segmentQuery)
	if err != nil {
		return nil, err
	}

	out := make(map[segmentKey]segmentInfo, res.Nrows)
	for _, row := range res.Rows {
		hostname := row[0].String
		dbid := atoiOrZero(row[1].String)
		content := atoiOrZero(row[2].String)
		role := row[3].String
		preferredRole := row[4].String
		mode := row[5].String
		status := row[6].String
		port := atoiOrZero(row[7].String)

		out[segmentKey{hostname: hostname, dbid: dbid}] = segmentInfo{
			content:       content,
			role:          role,
			preferredRole: preferredRole,
			mode:          mode,
			status:        status,
			port:          port,
		}
	}

	return out, nil
}
