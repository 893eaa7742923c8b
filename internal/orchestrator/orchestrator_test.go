package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreengageDB/greengage-exporter/internal/collector"
	"github.com/GreengageDB/greengage-exporter/internal/datasource"
	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

func TestWithinCacheWindow(t *testing.T) {
	o := &Orchestrator{cfg: Config{ScrapeCacheMaxAge: 10 * time.Second}}

	assert.False(t, o.withinCacheWindow(), "no successful scrape yet")

	o.lastSuccess = time.Now()
	assert.True(t, o.withinCacheWindow())

	o.lastSuccess = time.Now().Add(-20 * time.Second)
	assert.False(t, o.withinCacheWindow(), "stale result should not count as within the cache window")
}

func TestWithinCacheWindowDisabled(t *testing.T) {
	o := &Orchestrator{cfg: Config{ScrapeCacheMaxAge: 0}}
	o.lastSuccess = time.Now()
	assert.False(t, o.withinCacheWindow(), "a zero cache age disables reuse entirely")
}

// alwaysFailCollector raises on every Collect call, tagged by name so per-collector counters can
// be told apart (used to check that a collector failure leaves up at 1).
type alwaysFailCollector struct{ name string }

func (c *alwaysFailCollector) Name() string                       { return c.name }
func (c *alwaysFailCollector) Group() collector.Group              { return collector.GroupGeneral }
func (c *alwaysFailCollector) Enabled() bool                       { return true }
func (c *alwaysFailCollector) Collect(context.Context, *store.DB, version.Version) error {
	return errors.New("boom")
}

func newTestOrchestrator(t *testing.T, cfg Config, collectors map[string]collector.Collector) *Orchestrator {
	t.Helper()
	self, err := newSelfMetrics(registry.New())
	require.NoError(t, err)

	general, perDB := collector.OrderedNames(collectors)
	return &Orchestrator{
		self:     self,
		cfg:      cfg,
		general:  general,
		perDB:    perDB,
		byName:   collectors,
		provider: datasource.NewProvider(nil, datasource.ModeNone, nil, false),
		testConn: func(context.Context) bool { return true },
		detectVer: func(context.Context) (version.Version, error) {
			return version.Version{Major: 6, Minor: 20, Patch: 0, Raw: "postgres (Greengage Database 6.20.0 build dev)"}, nil
		},
		sleep: func(time.Duration) {},
	}
}

// P5 — with the breaker enabled and threshold T, once the first T collectors fail the rest of
// that scrape's collectors are never invoked.
func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	invoked := map[string]bool{}
	collectors := map[string]collector.Collector{}
	for _, name := range []string{"c1", "c2", "c3", "c4"} {
		name := name
		collectors[name] = &trackingFailCollector{name: name, onInvoke: func() { invoked[name] = true }}
	}

	o := newTestOrchestrator(t, Config{CircuitBreakerEnabled: true, CollectorFailureThreshold: 3, ConnectionRetryAttempts: 1}, collectors)
	o.runCycle(context.Background())

	assert.Len(t, invoked, 3, "only the first 3 collectors (threshold) should have run")
	assert.False(t, invoked["c4"], "c4 must not run once the breaker has tripped")
}

// P6 — with the breaker disabled, every enabled collector runs regardless of failure count.
func TestCircuitBreakerDisabledRunsEveryCollector(t *testing.T) {
	invoked := map[string]bool{}
	collectors := map[string]collector.Collector{}
	for _, name := range []string{"c1", "c2", "c3", "c4"} {
		name := name
		collectors[name] = &trackingFailCollector{name: name, onInvoke: func() { invoked[name] = true }}
	}

	o := newTestOrchestrator(t, Config{CircuitBreakerEnabled: false, CollectorFailureThreshold: 3, ConnectionRetryAttempts: 1}, collectors)
	o.runCycle(context.Background())

	assert.Len(t, invoked, 4, "every collector should run when the breaker is disabled")
}

type trackingFailCollector struct {
	name     string
	onInvoke func()
}

func (c *trackingFailCollector) Name() string          { return c.name }
func (c *trackingFailCollector) Group() collector.Group { return collector.GroupGeneral }
func (c *trackingFailCollector) Enabled() bool          { return true }
func (c *trackingFailCollector) Collect(context.Context, *store.DB, version.Version) error {
	c.onInvoke()
	return errors.New("boom")
}

// P4/S6 — when the verify phase succeeds on attempt k, testConnection is called exactly k times
// and the cumulative sleep equals delay*1 + delay*2 + ... + delay*(k-1).
func TestVerifyRetryBackoff(t *testing.T) {
	const delay = 50 * time.Millisecond
	calls := 0
	var slept []time.Duration

	o := &Orchestrator{
		cfg: Config{ConnectionRetryAttempts: 3, ConnectionRetryDelay: delay},
		testConn: func(context.Context) bool {
			calls++
			return calls == 3 // fails on attempts 1 and 2, succeeds on 3
		},
		detectVer: func(context.Context) (version.Version, error) {
			return version.Version{Major: 6, Minor: 0, Patch: 0, Raw: "v6"}, nil
		},
		sleep: func(d time.Duration) { slept = append(slept, d) },
	}

	ver, ok := o.verify(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 6, ver.Major)
	assert.Equal(t, 3, calls, "testConnection should be called exactly k=3 times")
	assert.Equal(t, []time.Duration{delay * 1, delay * 2}, slept)

	var cumulative time.Duration
	for _, d := range slept {
		cumulative += d
	}
	assert.Equal(t, delay*3, cumulative) // delay*1 + delay*2
}

// When every attempt fails, testConnection is called attempts times and no detectVersion call is
// made.
func TestVerifyExhaustsAttempts(t *testing.T) {
	calls := 0
	detectCalled := false

	o := &Orchestrator{
		cfg: Config{ConnectionRetryAttempts: 3, ConnectionRetryDelay: 10 * time.Millisecond},
		testConn: func(context.Context) bool {
			calls++
			return false
		},
		detectVer: func(context.Context) (version.Version, error) {
			detectCalled = true
			return version.Version{}, nil
		},
		sleep: func(time.Duration) {},
	}

	_, ok := o.verify(context.Background())

	assert.False(t, ok)
	assert.Equal(t, 3, calls)
	assert.False(t, detectCalled)
}

// up reflects the verify phase only: a collector failure (even one that trips the breaker) must
// not pull up back down to 0, and the cycle still counts as "last successful" for caching (I4).
func TestUpReflectsVerifyPhaseOnly(t *testing.T) {
	collectors := map[string]collector.Collector{
		"c1": &alwaysFailCollector{name: "c1"},
	}
	o := newTestOrchestrator(t, Config{CircuitBreakerEnabled: true, CollectorFailureThreshold: 1, ConnectionRetryAttempts: 1}, collectors)

	o.runCycle(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(o.self.up), "verify phase succeeded; up must stay 1 despite a collector failure")

	o.lastMu.Lock()
	defer o.lastMu.Unlock()
	assert.False(t, o.lastSuccess.IsZero(), "a cycle whose verify phase succeeded still records lastSuccess even if a collector fails")
}
