// Package orchestrator drives one scrape cycle: verifying the connection, running every enabled
// collector in a fixed order, and guaranteeing per-database resources are released even when a
// cycle is cut short.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GreengageDB/greengage-exporter/internal/collector"
	"github.com/GreengageDB/greengage-exporter/internal/datasource"
	"github.com/GreengageDB/greengage-exporter/internal/log"
	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

// Config holds the orchestrator's own tunables (§6, "orchestrator.*").
type Config struct {
	// ScrapeCacheMaxAge bounds how long a concurrent scrape request may reuse the last
	// successful result; past it the result is stale and the concurrent request is skipped with
	// a warning (it still does not start a second scrape).
	ScrapeCacheMaxAge time.Duration
	// CollectorFailureThreshold trips the in-scrape circuit breaker after this many collector
	// failures within a single cycle.
	CollectorFailureThreshold int
	// CircuitBreakerEnabled toggles whether CollectorFailureThreshold can abort a cycle at all.
	CircuitBreakerEnabled bool
	// ConnectionRetryAttempts bounds how many times the verify phase calls testConnection
	// before giving up on the cycle.
	ConnectionRetryAttempts int
	// ConnectionRetryDelay is the base backoff between verify-phase attempts; the sleep after
	// failed attempt i (before attempt i+1) is ConnectionRetryDelay * i.
	ConnectionRetryDelay time.Duration
}

// Orchestrator runs scrape cycles against a coordinator connection and a set of per-database
// connections supplied by a datasource.Provider.
type Orchestrator struct {
	base     *store.DB
	provider *datasource.Provider
	prober   *version.Prober
	reg      *registry.Registry
	self     *selfMetrics
	cfg      Config

	general []string
	perDB   []string
	byName  map[string]collector.Collector

	// scraping is a non-blocking try-lock (I4: at most one active scrape at a time).
	scraping int32

	lastMu      sync.Mutex
	lastSuccess time.Time

	// testConn and detectVer are the verify-phase primitives, bound to the coordinator pool in
	// New(); they're function fields rather than direct prober calls so the retry/backoff loop
	// in verify can be exercised by tests without a live connection.
	testConn  func(ctx context.Context) bool
	detectVer func(ctx context.Context) (version.Version, error)
	// sleep is time.Sleep in production; tests override it to assert on backoff without
	// actually waiting.
	sleep func(time.Duration)
}

// New builds an Orchestrator from an already-built collector set.
func New(
	base *store.DB,
	provider *datasource.Provider,
	prober *version.Prober,
	reg *registry.Registry,
	collectors map[string]collector.Collector,
	cfg Config,
) (*Orchestrator, error) {
	self, err := newSelfMetrics(reg)
	if err != nil {
		return nil, err
	}

	general, perDB := collector.OrderedNames(collectors)

	return &Orchestrator{
		base:     base,
		provider: provider,
		prober:   prober,
		reg:      reg,
		self:     self,
		cfg:      cfg,
		general:  general,
		perDB:    perDB,
		byName:   collectors,
		testConn: func(ctx context.Context) bool { return prober.TestConnection(ctx, base.Pool) },
		detectVer: func(ctx context.Context) (version.Version, error) {
			return prober.Detect(ctx, base.Pool)
		},
		sleep: time.Sleep,
	}, nil
}

// Scrape runs one scrape cycle. If a scrape is already in flight, it returns immediately without
// running a second one; the caller should treat this as "reuse what's currently published" (I4).
// Scrape returns nothing for the caller to retry on its own: every fault is handled internally
// (logged, self-metrics updated, up set to 0), leaving the error path to surface only through the
// registry's published metrics.
func (o *Orchestrator) Scrape(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&o.scraping, 0, 1) {
		if o.withinCacheWindow() {
			log.Debugf("scrape already in progress; reusing cached result within %s", o.cfg.ScrapeCacheMaxAge)
			return
		}
		log.Warnf("scrape already in progress and cached result is stale; skipping this tick")
		return
	}
	defer atomic.StoreInt32(&o.scraping, 0)

	start := time.Now()
	o.self.incScraped()
	o.runCycle(ctx)
	o.self.finish(start)
}

func (o *Orchestrator) withinCacheWindow() bool {
	if o.cfg.ScrapeCacheMaxAge <= 0 {
		return false
	}
	o.lastMu.Lock()
	defer o.lastMu.Unlock()
	return !o.lastSuccess.IsZero() && time.Since(o.lastSuccess) < o.cfg.ScrapeCacheMaxAge
}

// runCycle performs the verify phase, then GENERAL collectors, then PER_DB collectors across
// every allowed database, always releasing throwaway per-database connections on the way out
// (I6) regardless of where the cycle stopped. up reflects the verify phase only (§7 kind 1/2); a
// failed verify phase also increments the global error counter once. Individual collector
// failures (§7 kind 3/4) increment the per-collector and global error counters and feed the
// in-scrape circuit breaker, and never flip the cycle back to "DB down" for caching/up purposes.
func (o *Orchestrator) runCycle(ctx context.Context) {
	defer o.provider.Cleanup()

	ver, ok := o.verify(ctx)
	o.self.setUp(ok)
	if !ok {
		o.self.incError()
		return
	}

	failures := 0
	tripped := false

	run := func(name string, conn *store.DB) {
		if tripped {
			return
		}
		col, ok := o.byName[name]
		if !ok || !col.Enabled() {
			return
		}
		if err := col.Collect(ctx, conn, ver); err != nil {
			log.Warnf("collector %q failed: %s", name, err)
			o.self.recordCollectorError(name)
			failures++
			if o.cfg.CircuitBreakerEnabled && o.cfg.CollectorFailureThreshold > 0 && failures >= o.cfg.CollectorFailureThreshold {
				log.Errorf("collector failure threshold (%d) reached; aborting remainder of scrape", o.cfg.CollectorFailureThreshold)
				tripped = true
			}
		}
	}

	for _, name := range o.general {
		run(name, o.base)
	}

	if !tripped && len(o.perDB) > 0 {
		for _, name := range o.perDB {
			if cb, ok := o.byName[name].(collector.CycleBeginner); ok {
				cb.BeginCycle()
			}
		}

		dbs := o.provider.Datasources(ctx, o.base)
		for _, db := range dbs {
			if tripped {
				break
			}
			for _, name := range o.perDB {
				run(name, db)
			}
		}

		for _, name := range o.perDB {
			if fl, ok := o.byName[name].(collector.Flusher); ok {
				if err := fl.Flush(); err != nil {
					log.Warnf("collector %q flush failed: %s", name, err)
				}
			}
		}
	}

	o.lastMu.Lock()
	o.lastSuccess = time.Now()
	o.lastMu.Unlock()
}

// verify runs the connection-verify phase (§4.8 step 3): up to ConnectionRetryAttempts calls to
// testConnection, sleeping ConnectionRetryDelay*attempt between failures, then a single
// detectVersion call once testConnection succeeds. Returns the detected version and whether the
// phase succeeded.
func (o *Orchestrator) verify(ctx context.Context) (version.Version, bool) {
	attempts := o.cfg.ConnectionRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if o.testConn(ctx) {
			ver, err := o.detectVer(ctx)
			if err != nil {
				log.Errorf("scrape: version detection failed: %s", err)
				return version.Version{}, false
			}
			if !ver.IsSupported() {
				log.Errorf("scrape: unsupported server version %q", ver.Raw)
				return version.Version{}, false
			}
			return ver, true
		}

		log.Warnf("scrape: connection test failed (attempt %d/%d)", attempt, attempts)
		if attempt < attempts {
			o.sleep(o.cfg.ConnectionRetryDelay * time.Duration(attempt))
		}
	}

	log.Errorf("scrape: coordinator connection test failed after %d attempts", attempts)
	return version.Version{}, false
}
