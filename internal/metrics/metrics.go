// Package metrics is the observability port for the pipeline. Components
// receive a Recorder at construction; nothing here is a package global.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives pipeline measurements.
type Recorder interface {
	LeadEvaluated(action string, created bool)
	LeadsPurged(n int64)
	EventsPurged(n int64)
	SignalFetchFailed(source string)
	RunFinished(runType, status string, d time.Duration)
	CohortsRebuilt(members int)
	DispatchAttempt(channel, status string)
	BatchDelay(d time.Duration)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) LeadEvaluated(string, bool)                {}
func (Nop) LeadsPurged(int64)                         {}
func (Nop) EventsPurged(int64)                        {}
func (Nop) SignalFetchFailed(string)                  {}
func (Nop) RunFinished(string, string, time.Duration) {}
func (Nop) CohortsRebuilt(int)                        {}
func (Nop) DispatchAttempt(string, string)            {}
func (Nop) BatchDelay(time.Duration)                  {}

// Prometheus implements Recorder on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	leadsEvaluated *prometheus.CounterVec
	leadsPurged    prometheus.Counter
	eventsPurged   prometheus.Counter
	signalFailures *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	cohortMembers  prometheus.Gauge
	dispatchTotal  *prometheus.CounterVec
	batchDelaySecs prometheus.Histogram
}

// NewPrometheus registers the pipeline collectors plus the Go runtime and
// process collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		leadsEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dormant_leads_evaluated_total",
			Help: "Lead upserts by resulting next action and whether a row was created",
		}, []string{"action", "created"}),
		leadsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dormant_leads_purged_total",
			Help: "Expired leads hard-deleted by the reaper",
		}),
		eventsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dormant_leads_network_events_purged_total",
			Help: "Processed network events deleted after retention",
		}),
		signalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dormant_leads_signal_fetch_failures_total",
			Help: "Per-line signal fetches that failed and were skipped",
		}, []string{"source"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dormant_leads_worker_run_duration_seconds",
			Help:    "Duration of background runs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"type", "status"}),
		cohortMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dormant_leads_cohort_members",
			Help: "Memberships assigned by the latest cohort rebuild",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dormant_leads_dispatch_attempts_total",
			Help: "Nudge delivery attempts by channel and outcome",
		}, []string{"channel", "status"}),
		batchDelaySecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dormant_leads_dispatch_batch_delay_seconds",
			Help:    "Pause inserted between dispatch batches",
			Buckets: []float64{1, 10, 60, 360, 900, 3600},
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.leadsEvaluated, p.leadsPurged, p.eventsPurged, p.signalFailures,
		p.runDuration, p.cohortMembers, p.dispatchTotal, p.batchDelaySecs,
	)
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) LeadEvaluated(action string, created bool) {
	c := "false"
	if created {
		c = "true"
	}
	p.leadsEvaluated.WithLabelValues(action, c).Inc()
}

func (p *Prometheus) LeadsPurged(n int64)  { p.leadsPurged.Add(float64(n)) }
func (p *Prometheus) EventsPurged(n int64) { p.eventsPurged.Add(float64(n)) }

func (p *Prometheus) SignalFetchFailed(source string) {
	p.signalFailures.WithLabelValues(source).Inc()
}

func (p *Prometheus) RunFinished(runType, status string, d time.Duration) {
	p.runDuration.WithLabelValues(runType, status).Observe(d.Seconds())
}

func (p *Prometheus) CohortsRebuilt(members int) { p.cohortMembers.Set(float64(members)) }

func (p *Prometheus) DispatchAttempt(channel, status string) {
	p.dispatchTotal.WithLabelValues(channel, status).Inc()
}

func (p *Prometheus) BatchDelay(d time.Duration) { p.batchDelaySecs.Observe(d.Seconds()) }
