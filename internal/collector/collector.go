// Package collector implements the collector contract (aggregate and per-entity shapes) and the
// catalogue of concrete collectors driven by the orchestrator.
package collector

import (
	"context"
	"sort"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// Group tells the orchestrator which connection a collector expects.
type Group int

const (
	// GroupGeneral collectors receive the coordinator connection.
	GroupGeneral Group = iota
	// GroupPerDB collectors are invoked once per allowed database.
	GroupPerDB
)

func (g Group) String() string {
	if g == GroupPerDB {
		return "per_db"
	}
	return "general"
}

// Collector is the interface every concrete collector implements.
type Collector interface {
	// Name identifies the collector in logs, self-metrics, and configuration.
	Name() string
	// Group tells the orchestrator which connection shape this collector expects.
	Group() Group
	// Enabled reports whether this collector should run at all.
	Enabled() bool
	// Collect runs one scrape of this collector against conn, using ver to pick SQL dialect.
	Collect(ctx context.Context, conn *store.DB, ver version.Version) error
}

// CycleBeginner is implemented by collectors that accumulate results across several Collect
// calls within one scrape cycle (PER_DB collectors). The orchestrator calls BeginCycle before
// the first per-database Collect and Flush after the last.
type CycleBeginner interface {
	BeginCycle()
}

// Flusher commits a PER_DB collector's accumulated per-database results as a single snapshot.
type Flusher interface {
	Flush() error
}

// Settings bundles the per-collector knobs recognized by the configuration surface (§6).
type Settings struct {
	// Enabled toggles a named collector on/off; absent entries default to true (false for
	// gp-backup-history and table-health; each factory passes its own default to IsEnabled).
	Enabled map[string]bool
	// TableVacuumTupleThreshold is the "collectors.table-vacuum-statistics-tuple-threshold" knob.
	TableVacuumTupleThreshold int
	// BackupHistoryDSN is the secondary SQLite datasource for gp-backup-history.
	BackupHistoryDSN string
}

// IsEnabled resolves the configured enabled flag for name, applying defaultValue when unset.
func (s Settings) IsEnabled(name string, defaultValue bool) bool {
	if s.Enabled == nil {
		return defaultValue
	}
	if v, ok := s.Enabled[name]; ok {
		return v
	}
	return defaultValue
}

// Factory constructs a Collector bound to a shared registry and the resolved settings.
type Factory func(reg *registry.Registry, settings Settings) (Collector, error)

// Catalogue unions every collector factory known to the exporter, keyed by collector name. It is
// the single place new collectors get wired in, mirroring the teacher's Factories map.
type Catalogue map[string]Factory

// NewCatalogue returns the full catalogue described in the spec's collector table (§4.7).
func NewCatalogue() Catalogue {
	c := Catalogue{}
	c.register("cluster-state", newClusterStateCollector)
	c.register("segment", newSegmentCollector)
	c.register("connections-by-state", newConnectionsCollector)
	c.register("locked-sessions", newLockedSessionsCollector)
	c.register("extended-locked-sessions", newExtendedLockedSessionsCollector)
	c.register("database-size", newDatabaseSizeCollector)
	c.register("replication-monitor", newReplicationCollector)
	c.register("table-health", newTableHealthCollector)
	c.register("spill-per-host", newSpillPerHostCollector)
	c.register("disk-per-host", newDiskPerHostCollector)
	c.register("rsg-per-host", newResourceGroupPerHostCollector)
	c.register("active-query-duration", newActiveQueryDurationCollector)
	c.register("table-vacuum-statistics", newTableVacuumCollector)
	c.register("db-vacuum-statistics", newDBVacuumCollector)
	c.register("vacuum-running", newVacuumRunningCollector)
	c.register("gp-backup-history", newBackupHistoryCollector)
	return c
}

func (c Catalogue) register(name string, f Factory) { c[name] = f }

// Build instantiates every collector in the catalogue against the given registry and settings.
func (c Catalogue) Build(reg *registry.Registry, settings Settings) (map[string]Collector, error) {
	out := make(map[string]Collector, len(c))
	for name, factory := range c {
		col, err := factory(reg, settings)
		if err != nil {
			return nil, err
		}
		out[name] = col
	}
	return out, nil
}

// OrderedNames returns the catalogue's names, grouped GENERAL-then-PER_DB, in a stable
// deterministic order (alphabetical within each group) to satisfy the orchestrator's ordering
// guarantee.
func OrderedNames(collectors map[string]Collector) (general []string, perDB []string) {
	for name, col := range collectors {
		if col.Group() == GroupPerDB {
			perDB = append(perDB, name)
		} else {
			general = append(general, name)
		}
	}
	sort.Strings(general)
	sort.Strings(perDB)
	return general, perDB
}
