package collector

import (
	"context"
	"sync/atomic"

	"github.com/GreengageDB/greengage-exporter/internal/log"
	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// AggregateBase implements the cluster-wide-singleton collector shape (§4.6.1): metrics are
// registered once from an atomic reference to the latest snapshot, and collect() only ever
// replaces that reference.
type AggregateBase[T any] struct {
	name             string
	group            Group
	enabled          bool
	shouldFailOnError bool

	state atomic.Pointer[T]

	reg         *registry.Registry
	collectData func(ctx context.Context, conn *store.DB, ver version.Version) (*T, error)
	onUpdate    func(reg *registry.Registry, snap *T)
}

// NewAggregateBase builds an AggregateBase and registers its gauges against reg via registerFn,
// which should read through Get() in its supplier closures. onUpdate, if non-nil, runs once per
// successful non-nil collect, after the snapshot has been published; it exists for the rare
// metric whose label values (not just its numeric value) come from the snapshot itself, such as
// an "info" gauge, which a plain supplier-read gauge can't express.
func NewAggregateBase[T any](
	name string,
	group Group,
	enabled bool,
	shouldFailOnError bool,
	reg *registry.Registry,
	collectData func(ctx context.Context, conn *store.DB, ver version.Version) (*T, error),
	registerAggregateMetrics func(reg *registry.Registry, get func() *T) error,
	onUpdate func(reg *registry.Registry, snap *T),
) (*AggregateBase[T], error) {
	a := &AggregateBase[T]{
		name:              name,
		group:             group,
		enabled:           enabled,
		shouldFailOnError: shouldFailOnError,
		reg:               reg,
		collectData:       collectData,
		onUpdate:          onUpdate,
	}

	if enabled && registerAggregateMetrics != nil {
		if err := registerAggregateMetrics(reg, a.Get); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Get returns the latest snapshot, or nil if none has been collected yet.
func (a *AggregateBase[T]) Get() *T { return a.state.Load() }

// Name implements Collector.
func (a *AggregateBase[T]) Name() string { return a.name }

// Group implements Collector.
func (a *AggregateBase[T]) Group() Group { return a.group }

// Enabled implements Collector.
func (a *AggregateBase[T]) Enabled() bool { return a.enabled }

// Collect runs collectData and, on success, atomically replaces the published snapshot. A nil
// result leaves the previous state in place rather than publishing zeros. An error is either
// returned (fail-fast, the default) or logged and swallowed, per shouldFailOnError.
func (a *AggregateBase[T]) Collect(ctx context.Context, conn *store.DB, ver version.Version) error {
	snap, err := a.collectData(ctx, conn, ver)
	if err != nil {
		log.Errorf("%s collector failed: %s", a.name, err)
		if a.shouldFailOnError {
			return err
		}
		return nil
	}

	if snap == nil {
		log.Debugf("%s collector: no data returned, keep previous state", a.name)
		return nil
	}

	a.state.Store(snap)
	if a.onUpdate != nil {
		a.onUpdate(a.reg, snap)
	}
	return nil
}
