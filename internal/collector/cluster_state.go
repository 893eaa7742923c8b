package collector

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

const clusterStateQuery = `
SELECT
	(SELECT count(*) FROM gp_segment_configuration WHERE content >= 0) AS segments_total,
	(SELECT count(*) FROM gp_segment_configuration WHERE content >= 0 AND status = 'u') AS segments_up,
	(SELECT count(*) FROM gp_segment_configuration WHERE content >= 0 AND status = 'd') AS segments_down,
	(SELECT hostname FROM gp_segment_configuration WHERE content = -1 AND role = 'p') AS master,
	(SELECT hostname FROM gp_segment_configuration WHERE content = -1 AND role != 'p') AS standby
`

// clusterState is the cluster-wide singleton snapshot published by the cluster-state collector.
type clusterState struct {
	segmentsTotal int
	segmentsUp    int
	segmentsDown  int
	master        string
	standby       string
	version       string
}

type clusterStateCollector struct {
	*AggregateBase[clusterState]
}

func newClusterStateCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("cluster-state", true)

	onUpdate, err := newClusterStateInfoUpdater(reg, enabled)
	if err != nil {
		return nil, err
	}

	base, err := NewAggregateBase(
		"cluster-state",
		GroupGeneral,
		enabled,
		false, // shouldFailOnError: cluster-state must not abort the scrape
		reg,
		collectClusterState,
		registerClusterStateMetrics,
		onUpdate,
	)
	if err != nil {
		return nil, err
	}
	return &clusterStateCollector{base}, nil
}

// newClusterStateInfoUpdater registers the cluster-state info gauge (§4.7: "labels include
// version, master, standby read each scrape") and returns the onUpdate hook that keeps it in
// sync with the latest snapshot. The labels, not just the value, change between scrapes, which a
// plain supplier-read gauge can't express - so it's a GaugeVec, re-set on every successful
// collect, with the previous label combination evicted first.
func newClusterStateInfoUpdater(reg *registry.Registry, enabled bool) (func(reg *registry.Registry, snap *clusterState), error) {
	if !enabled {
		return nil, nil
	}

	infoVec, err := reg.RegisterGaugeVec("greengage_cluster_state_info",
		"Cluster identity info: server version, master and standby hostnames.",
		[]string{"version", "master", "standby"})
	if err != nil {
		return nil, err
	}

	var prevLabels prometheus.Labels
	return func(_ *registry.Registry, snap *clusterState) {
		if snap == nil {
			return
		}
		labels := prometheus.Labels{"version": snap.version, "master": snap.master, "standby": snap.standby}
		if prevLabels != nil {
			infoVec.Delete(prevLabels)
		}
		infoVec.With(labels).Set(1)
		prevLabels = labels
	}, nil
}

func registerClusterStateMetrics(reg *registry.Registry, get func() *clusterState) error {
	snapshot := func(f func(clusterState) float64) func() float64 {
		return func() float64 {
			if s := get(); s != nil {
				return f(*s)
			}
			return 0
		}
	}

	if _, err := reg.RegisterGaugeFunc("greengage_cluster_segments_total", "Total number of content segments in the cluster.", nil,
		snapshot(func(s clusterState) float64 { return float64(s.segmentsTotal) })); err != nil {
		return err
	}
	if _, err := reg.RegisterGaugeFunc("greengage_cluster_segments_up", "Number of content segments currently up.", nil,
		snapshot(func(s clusterState) float64 { return float64(s.segmentsUp) })); err != nil {
		return err
	}
	if _, err := reg.RegisterGaugeFunc("greengage_cluster_segments_down", "Number of content segments currently down.", nil,
		snapshot(func(s clusterState) float64 { return float64(s.segmentsDown) })); err != nil {
		return err
	}
	return nil
}

func collectClusterState(ctx context.Context, conn *store.DB, ver version.Version) (*clusterState, error) {
	var s clusterState
	var master, standby *string

	row := conn.QueryRow(ctx, clusterStateQuery)
	if err := row.Scan(&s.segmentsTotal, &s.segmentsUp, &s.segmentsDown, &master, &standby); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if master != nil {
		s.master = *master
	}
	if standby != nil {
		s.standby = *standby
	}
	s.version = ver.Raw

	return &s, nil
}
