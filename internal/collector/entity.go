package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GreengageDB/greengage-exporter/internal/log"
	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// EntityBase implements the per-entity collector shape (§4.6.2): metrics are registered lazily,
// once per entity key, and (optionally) removed when a key disappears from a later snapshot.
type EntityBase[K comparable, V any] struct {
	name              string
	group             Group
	enabled           bool
	shouldFailOnError bool
	removeDeletedMetrics bool

	// accumulate is set for PER_DB collectors: Collect is invoked once per allowed database
	// within a scrape cycle, so results are merged into pending and only committed (diffed
	// against the previous snapshot, registered/unregistered) once the orchestrator calls Flush
	// at the end of the cycle. GENERAL collectors run Collect once per scrape and commit inline.
	accumulate bool

	entities atomic.Pointer[map[K]V]

	mu             sync.Mutex // guards registeredKeys/meterIDsByKey/pending together with registration calls
	registeredKeys map[K]struct{}
	meterIDsByKey  map[K][]string
	pending        map[K]V

	reg *registry.Registry

	collectEntities func(ctx context.Context, conn *store.DB, ver version.Version) (map[K]V, error)
	registerEntity  func(reg *registry.Registry, key K, get func() (V, bool)) ([]string, error)
}

// EntityOptions configures an EntityBase at construction time.
type EntityOptions[K comparable, V any] struct {
	Name                 string
	Group                Group
	Enabled              bool
	ShouldFailOnError    bool
	RemoveDeletedMetrics bool

	CollectEntities func(ctx context.Context, conn *store.DB, ver version.Version) (map[K]V, error)
	// RegisterEntity registers the metrics for one entity key, reading its current value through
	// get (which returns false if the key has since vanished). It returns the meter identities it
	// registered, used for later removal when RemoveDeletedMetrics is set.
	RegisterEntity func(reg *registry.Registry, key K, get func() (V, bool)) ([]string, error)
	// RegisterAggregate is called once at construction for cross-entity rollups (totals, skew)
	// whose suppliers read the live entity map directly.
	RegisterAggregate func(reg *registry.Registry, all func() map[K]V) error
}

// NewEntityBase builds an EntityBase and registers any aggregate (cross-entity) metrics.
func NewEntityBase[K comparable, V any](reg *registry.Registry, opts EntityOptions[K, V]) (*EntityBase[K, V], error) {
	e := &EntityBase[K, V]{
		name:                 opts.Name,
		group:                opts.Group,
		enabled:              opts.Enabled,
		shouldFailOnError:    opts.ShouldFailOnError,
		removeDeletedMetrics: opts.RemoveDeletedMetrics,
		accumulate:           opts.Group == GroupPerDB,
		registeredKeys:       make(map[K]struct{}),
		meterIDsByKey:        make(map[K][]string),
		reg:                  reg,
		collectEntities:      opts.CollectEntities,
		registerEntity:       opts.RegisterEntity,
	}

	if opts.Enabled && opts.RegisterAggregate != nil {
		if err := opts.RegisterAggregate(reg, e.All); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Name implements Collector.
func (e *EntityBase[K, V]) Name() string { return e.name }

// Group implements Collector.
func (e *EntityBase[K, V]) Group() Group { return e.group }

// Enabled implements Collector.
func (e *EntityBase[K, V]) Enabled() bool { return e.enabled }

// All returns the latest entity snapshot, or an empty map if none has been collected yet.
func (e *EntityBase[K, V]) All() map[K]V {
	if m := e.entities.Load(); m != nil {
		return *m
	}
	return map[K]V{}
}

// get is the supplier passed to registered metrics: it reads the live snapshot for key, reporting
// whether the key is still present (I3 - observes either the new snapshot or the previous one,
// never a partial update, because entities is replaced as a whole).
func (e *EntityBase[K, V]) get(key K) (V, bool) {
	m := e.entities.Load()
	if m == nil {
		var zero V
		return zero, false
	}
	v, ok := (*m)[key]
	return v, ok
}

// Collect runs the exact sequence from spec §4.6.2: collect, validate, clean up vanished keys
// (if enabled), swap the snapshot, then lazily register any newly observed keys. For PER_DB
// collectors (accumulate), results are merged into a pending buffer and committed only when
// Flush is called, since Collect runs once per allowed database within a single scrape cycle.
func (e *EntityBase[K, V]) Collect(ctx context.Context, conn *store.DB, ver version.Version) error {
	newEntities, err := e.collectEntities(ctx, conn, ver)
	if err != nil {
		log.Errorf("%s collector failed: %s", e.name, err)
		if e.shouldFailOnError {
			return err
		}
		return nil
	}
	if newEntities == nil {
		return fmt.Errorf("%s collector: collectEntities returned a nil map", e.name)
	}

	var zeroKey K
	for k := range newEntities {
		if k == zeroKey {
			return fmt.Errorf("%s collector: programming error, nil/zero entity key", e.name)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.accumulate {
		if e.pending == nil {
			e.pending = make(map[K]V, len(newEntities))
		}
		for k, v := range newEntities {
			e.pending[k] = v
		}
		return nil
	}

	e.commitLocked(newEntities)
	return nil
}

// BeginCycle resets the accumulation buffer for PER_DB collectors at the start of a scrape
// cycle. A no-op for GENERAL collectors, which commit inline on every Collect call.
func (e *EntityBase[K, V]) BeginCycle() {
	if !e.accumulate {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = make(map[K]V)
}

// Flush commits the accumulated per-database results as a single atomic snapshot, running the
// same vanish-diff and lazy-registration sequence Collect runs inline for GENERAL collectors.
// A no-op for GENERAL collectors.
func (e *EntityBase[K, V]) Flush() error {
	if !e.accumulate {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	pending := e.pending
	if pending == nil {
		pending = map[K]V{}
	}
	e.commitLocked(pending)
	e.pending = nil
	return nil
}

func (e *EntityBase[K, V]) commitLocked(newEntities map[K]V) {
	if e.removeDeletedMetrics {
		e.removeVanishedLocked(newEntities)
	}

	e.entities.Store(&newEntities)

	e.registerNewLocked(newEntities)
}

func (e *EntityBase[K, V]) removeVanishedLocked(newEntities map[K]V) {
	for key := range e.registeredKeys {
		if _, present := newEntities[key]; present {
			continue
		}

		ids := e.meterIDsByKey[key]
		for _, id := range ids {
			if !e.reg.Remove(id) {
				log.Debugf("%s collector: meter %s for vanished key already absent", e.name, id)
			}
		}
		log.Debugf("%s collector: removed %d meters for vanished entity", e.name, len(ids))

		delete(e.registeredKeys, key)
		delete(e.meterIDsByKey, key)
	}
}

func (e *EntityBase[K, V]) registerNewLocked(newEntities map[K]V) {
	for key := range newEntities {
		if _, already := e.registeredKeys[key]; already {
			continue
		}

		supplier := func() (V, bool) { return e.get(key) }

		ids, err := e.registerEntity(e.reg, key, supplier)
		if err != nil {
			log.Warnf("%s collector: register entity %v failed: %s; skip", e.name, key, err)
			continue
		}

		e.registeredKeys[key] = struct{}{}
		if e.removeDeletedMetrics {
			e.meterIDsByKey[key] = ids
		}
	}
}
