// Package registry adapts a Prometheus registry to the register-once/read-via-supplier pattern
// the collection runtime relies on: a metric identity is registered at most once, its value is
// read through a closure on every HTTP scrape, and it can be torn down by identity later.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a *prometheus.Registry and tracks registered meters by identity so they can be
// looked up and removed later (used by entity collectors' deletion cleanup, I1/P1/P2).
type Registry struct {
	prom *prometheus.Registry

	mu     sync.Mutex
	meters map[string]prometheus.Collector
}

// New creates a Registry wrapping a fresh prometheus.Registry.
func New() *Registry {
	return &Registry{
		prom:   prometheus.NewRegistry(),
		meters: make(map[string]prometheus.Collector),
	}
}

// Prometheus returns the underlying registry, for wiring into an HTTP handler.
func (r *Registry) Prometheus() *prometheus.Registry { return r.prom }

// Identity computes the meter identity (name + fully qualified label set) used for dedup and
// removal. Two registrations with the same name and same label set are the same meter (I1).
func Identity(name string, labels prometheus.Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// RegisterGaugeFunc registers (if not already registered) a gauge whose value is produced by
// supplier at every scrape of the registry, and returns its identity. A second call with the same
// identity is a no-op and returns the existing identity - this is what makes registration
// effectively one-shot per key.
func (r *Registry) RegisterGaugeFunc(name, help string, labels prometheus.Labels, supplier func() float64) (string, error) {
	id := Identity(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.meters[id]; ok {
		return id, nil
	}

	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, supplier)

	if err := r.prom.Register(g); err != nil {
		return "", err
	}

	r.meters[id] = g
	return id, nil
}

// RegisterCounter registers a counter meter and returns it, creating it on first call and
// returning the existing instance afterwards.
func (r *Registry) RegisterCounter(name, help string, labelNames []string) (*prometheus.CounterVec, error) {
	id := Identity(name, prometheus.Labels{"__vec": strings.Join(labelNames, ",")})

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.meters[id]; ok {
		return existing.(*prometheus.CounterVec), nil
	}

	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames)
	if err := r.prom.Register(c); err != nil {
		return nil, err
	}
	r.meters[id] = c
	return c, nil
}

// RegisterGaugeVec registers a gauge vector and returns it, creating it on first call and
// returning the existing instance afterwards. Intended for "info" style gauges whose label
// values change between scrapes - callers are responsible for evicting stale label combinations
// with GaugeVec.Delete before setting a new one.
func (r *Registry) RegisterGaugeVec(name, help string, labelNames []string) (*prometheus.GaugeVec, error) {
	id := Identity(name, prometheus.Labels{"__vec": strings.Join(labelNames, ",")})

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.meters[id]; ok {
		return existing.(*prometheus.GaugeVec), nil
	}

	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames)
	if err := r.prom.Register(g); err != nil {
		return nil, err
	}
	r.meters[id] = g
	return g, nil
}

// RegisterGauge registers a plain gauge (written directly, not via supplier) such as `up`.
func (r *Registry) RegisterGauge(name, help string) (prometheus.Gauge, error) {
	id := Identity(name, nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.meters[id]; ok {
		return existing.(prometheus.Gauge), nil
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	if err := r.prom.Register(g); err != nil {
		return nil, err
	}
	r.meters[id] = g
	return g, nil
}

// RegisterSummary registers a summary (scrape duration style timer), observed directly.
func (r *Registry) RegisterSummary(name, help string) (prometheus.Summary, error) {
	id := Identity(name, nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.meters[id]; ok {
		return existing.(prometheus.Summary), nil
	}

	s := prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       name,
		Help:       help,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
	if err := r.prom.Register(s); err != nil {
		return nil, err
	}
	r.meters[id] = s
	return s, nil
}

// Remove unregisters the meter with the given identity. It tolerates removal of an identity that
// was never registered (returns false, no error) so deletion-cleanup callers can be liberal.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.meters[id]
	if !ok {
		return false
	}
	delete(r.meters, id)
	return r.prom.Unregister(c)
}

// Len returns the number of meters currently tracked, for tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.meters)
}
