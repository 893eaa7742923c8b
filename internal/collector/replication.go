package collector

import (
	"context"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// replicationQueryV7 targets servers reporting WAL LSNs as pg_lsn (v7+ naming).
const replicationQueryV7 = `
SELECT
	application_name,
	client_addr,
	state,
	sync_state,
	pg_wal_lsn_diff(sent_lsn, replay_lsn) AS lag_bytes
FROM pg_stat_replication
`

// replicationQueryV6 targets older servers using the xlog-prefixed column names.
const replicationQueryV6 = `
SELECT
	application_name,
	client_addr,
	state,
	sync_state,
	pg_xlog_location_diff(sent_location, replay_location) AS lag_bytes
FROM pg_stat_replication
`

type replicationKey struct {
	applicationName string
	clientAddr      string
}

type replicationInfo struct {
	state     string
	syncState string
	lagBytes  float64
}

type replicationCollector struct {
	*EntityBase[replicationKey, replicationInfo]
}

func newReplicationCollector(reg *registry.Registry, settings Settings) (Collector, error) {
	enabled := settings.IsEnabled("replication-monitor", true)

	base, err := NewEntityBase(reg, EntityOptions[replicationKey, replicationInfo]{
		Name:              "replication-monitor",
		Group:             GroupGeneral,
		Enabled:           enabled,
		ShouldFailOnError: false,
		CollectEntities:   collectReplication,
		RegisterEntity:    registerReplicationMetrics,
	})
	if err != nil {
		return nil, err
	}
	return &replicationCollector{base}, nil
}

func registerReplicationMetrics(reg *registry.Registry, key replicationKey, get func() (replicationInfo, bool)) ([]string, error) {
	labels := map[string]string{
		"application_name": applicationNameOrDefault(key.applicationName),
		"client_addr":      key.clientAddr,
	}

	var ids []string

	id, err := reg.RegisterGaugeFunc("greengage_replication_state", "Replication connection state.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return EncodeReplicationState(info.state)
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_replication_sync_state", "Replication sync state.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return EncodeSyncState(info.syncState)
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = reg.RegisterGaugeFunc("greengage_replication_lag_bytes", "Replication lag, in bytes.", labels, func() float64 {
		info, ok := get()
		if !ok {
			return 0
		}
		return info.lagBytes
	})
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	return ids, nil
}

func collectReplication(ctx context.Context, conn *store.DB, ver version.Version) (map[replicationKey]replicationInfo, error) {
	query := replicationQueryV7
	if !ver.IsAtLeastV7() {
		query = replicationQueryV6
	}

	res, err := conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make(map[replicationKey]replicationInfo, res.Nrows)
	for _, row := range res.Rows {
		key := replicationKey{
			applicationName: row[0].String,
			clientAddr:      row[1].String,
		}
		out[key] = replicationInfo{
			state:     row[2].String,
			syncState: row[3].String,
			lagBytes:  atofOrZero(row[4].String),
		}
	}
	return out, nil
}
