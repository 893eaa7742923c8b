// Package version detects and caches the coordinator's DB version, gating SQL dialect choice.
package version

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/GreengageDB/greengage-exporter/internal/log"
)

// bannerRE parses a "... ( <name> M.m.p[<suffix>] build <x> ) ..." version banner.
var bannerRE = regexp.MustCompile(`\(\s*\S+.*?(\d+)\.(\d+)\.(\d+)(\S*)\s+build\s+\S+\s*\)`)

// Version describes the parsed DB server version.
type Version struct {
	Major int
	Minor int
	Patch int
	Raw   string
}

// IsAtLeastV7 returns true if the major version is 7 or newer.
func (v Version) IsAtLeastV7() bool { return v.Major >= 7 }

// IsSupported returns true if the server version is new enough to be monitored.
func (v Version) IsSupported() bool { return v.Major >= 6 }

// Prober detects and caches the DB version, and exposes a lightweight liveness check.
type Prober struct {
	mu      sync.Mutex
	cached  *Version
	breaker *gobreaker.CircuitBreaker

	attempts int
	delay    time.Duration
	timeout  time.Duration
}

// Config configures retry/backoff/breaker behavior of the probe.
type Config struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// NewProber builds a Prober with a dedicated circuit breaker guarding detectVersion.
func NewProber(cfg Config) *Prober {
	p := &Prober{attempts: cfg.Attempts, delay: cfg.Delay, timeout: cfg.Timeout}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "version-probe",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("%s: circuit breaker state changed from %s to %s", name, from, to)
		},
	})
	return p
}

// TestConnection runs a trivial SELECT 1 against the pool; used both by the orchestrator's
// verify phase and by an external liveness check (/health/live).
func (p *Prober) TestConnection(ctx context.Context, pool *pgxpool.Pool) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeoutOrDefault())
	defer cancel()

	var one int
	err := pool.QueryRow(ctx, "SELECT 1").Scan(&one)
	if err != nil {
		log.Debugf("test connection failed: %s", err)
		return false
	}
	return one == 1
}

// Detect returns the cached version if present, else runs SELECT version(), parses it, caches
// it, and returns it. Detect is safe for concurrent callers; only one performs the actual query.
func (p *Prober) Detect(ctx context.Context, pool *pgxpool.Pool) (Version, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached, nil
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.detectWithRetry(ctx, pool)
	})
	if err != nil {
		return Version{}, err
	}

	v := result.(Version)
	p.cached = &v

	return v, nil
}

// detectWithRetry runs the raw detection query, retrying bounded attempts with a short backoff.
func (p *Prober) detectWithRetry(ctx context.Context, pool *pgxpool.Pool) (Version, error) {
	operation := func() (Version, error) {
		qctx, cancel := context.WithTimeout(ctx, p.timeoutOrDefault())
		defer cancel()

		var raw string
		if err := pool.QueryRow(qctx, "SELECT version()").Scan(&raw); err != nil {
			return Version{}, err
		}

		v, err := parseBanner(raw)
		if err != nil {
			// Parse failure is fatal for the probe - don't retry on garbage input.
			return Version{}, backoff.Permanent(err)
		}
		return v, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithMaxTries(uint(p.attemptsOrDefault())),
		backoff.WithBackOff(backoff.NewConstantBackOff(p.delayOrDefault())),
	)
}

func (p *Prober) attemptsOrDefault() int {
	if p.attempts <= 0 {
		return 3
	}
	return p.attempts
}

func (p *Prober) delayOrDefault() time.Duration {
	if p.delay <= 0 {
		return time.Second
	}
	return p.delay
}

func (p *Prober) timeoutOrDefault() time.Duration {
	if p.timeout <= 0 {
		return 5 * time.Second
	}
	return p.timeout
}

// parseBanner extracts major/minor/patch from a "SELECT version()" banner.
func parseBanner(raw string) (Version, error) {
	m := bannerRE.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, fmt.Errorf("version: unrecognized banner format: %q", raw)
	}

	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("version: invalid major version in %q: %w", raw, err)
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, fmt.Errorf("version: invalid minor version in %q: %w", raw, err)
	}
	patch, err := strconv.Atoi(m[3])
	if err != nil {
		return Version{}, fmt.Errorf("version: invalid patch version in %q: %w", raw, err)
	}

	return Version{Major: major, Minor: minor, Patch: patch, Raw: raw}, nil
}
