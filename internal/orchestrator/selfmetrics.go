package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
)

// selfMetrics are the exporter's own operational metrics (§4.10), registered once at startup.
type selfMetrics struct {
	totalScraped    prometheus.Counter
	totalError      prometheus.Counter
	collectorError  *prometheus.CounterVec
	up              prometheus.Gauge
	scrapeDuration  prometheus.Summary
	uptime          prometheus.Gauge
	startedAt       time.Time
}

func newSelfMetrics(reg *registry.Registry) (*selfMetrics, error) {
	totalScrapedVec, err := reg.RegisterCounter("greengage_exporter_total_scraped", "Total number of scrape cycles performed.", nil)
	if err != nil {
		return nil, err
	}
	totalErrorVec, err := reg.RegisterCounter("greengage_exporter_total_error", "Total number of errors: failed verify phases plus individual collector failures.", nil)
	if err != nil {
		return nil, err
	}
	collectorError, err := reg.RegisterCounter("greengage_exporter_collector_error", "Total number of collector failures, by collector name.", []string{"collector"})
	if err != nil {
		return nil, err
	}
	up, err := reg.RegisterGauge("up", "Whether the last scrape of the coordinator connection succeeded (1) or not (0).")
	if err != nil {
		return nil, err
	}
	scrapeDuration, err := reg.RegisterSummary("greengage_exporter_scrape_duration_seconds", "Duration of a full scrape cycle, in seconds.")
	if err != nil {
		return nil, err
	}
	uptime, err := reg.RegisterGauge("greengage_exporter_uptime_seconds", "Seconds since the exporter process started.")
	if err != nil {
		return nil, err
	}

	return &selfMetrics{
		totalScraped:   totalScrapedVec.WithLabelValues(),
		totalError:     totalErrorVec.WithLabelValues(),
		collectorError: collectorError,
		up:             up,
		scrapeDuration: scrapeDuration,
		uptime:         uptime,
		startedAt:      time.Now(),
	}, nil
}

func (m *selfMetrics) incScraped() { m.totalScraped.Inc() }

func (m *selfMetrics) incError() { m.totalError.Inc() }

// setUp reflects the verify phase's outcome only (§7 kind 1/2); collector-level failures never
// flip it back to 0.
func (m *selfMetrics) setUp(ok bool) {
	if ok {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
}

// recordCollectorError increments both the per-collector counter and the global error counter
// (§4.10: "incremented on any scrape-level error and on each collector error").
func (m *selfMetrics) recordCollectorError(name string) {
	m.collectorError.WithLabelValues(name).Inc()
	m.totalError.Inc()
}

func (m *selfMetrics) finish(start time.Time) {
	m.scrapeDuration.Observe(time.Since(start).Seconds())
	m.uptime.Set(time.Since(m.startedAt).Seconds())
}
