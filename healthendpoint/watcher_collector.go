package healthendpoint

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	FailureTransient = "transient"
	FailurePermanent = "permanent"
)

// WatcherCollector exposes the sampling and notification pipeline. It
// satisfies the metrics hooks of the sampler, evaluator and scheduler.
type WatcherCollector struct {
	breaches         prometheus.Counter
	suppressed       prometheus.Counter
	sent             prometheus.Counter
	failed           *prometheus.CounterVec
	skippedProcesses prometheus.Counter
	trackedProcesses prometheus.Gauge
	cooldownEntries  prometheus.Gauge
	tickDuration     prometheus.Histogram
}

var _ prometheus.Collector = &WatcherCollector{}

func NewWatcherCollector(namespace, subSystem string) *WatcherCollector {
	return &WatcherCollector{
		breaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "breaches_total",
			Help:      "Number of samples above the CPU threshold",
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "notifications_suppressed_total",
			Help:      "Number of breaches not notified because the process is in cooldown",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "notifications_sent_total",
			Help:      "Number of notifications accepted by the endpoint",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "notifications_failed_total",
			Help:      "Number of notifications that could not be delivered",
		}, []string{"kind"}),
		skippedProcesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "sample_skipped_processes_total",
			Help:      "Number of processes that could not be read while sampling",
		}),
		trackedProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "tracked_processes",
			Help:      "Number of processes with a CPU baseline",
		}),
		cooldownEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "cooldown_entries",
			Help:      "Number of processes remembered by the cooldown tracker",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subSystem,
			Name:      "tick_duration_seconds",
			Help:      "Time spent sampling, evaluating and dispatching per tick",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
}

func (c *WatcherCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.breaches.Desc()
	ch <- c.suppressed.Desc()
	ch <- c.sent.Desc()
	c.failed.Describe(ch)
	ch <- c.skippedProcesses.Desc()
	ch <- c.trackedProcesses.Desc()
	ch <- c.cooldownEntries.Desc()
	ch <- c.tickDuration.Desc()
}

func (c *WatcherCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- c.breaches
	ch <- c.suppressed
	ch <- c.sent
	c.failed.Collect(ch)
	ch <- c.skippedProcesses
	ch <- c.trackedProcesses
	ch <- c.cooldownEntries
	ch <- c.tickDuration
}

func (c *WatcherCollector) Breached() {
	c.breaches.Inc()
}

func (c *WatcherCollector) Suppressed() {
	c.suppressed.Inc()
}

func (c *WatcherCollector) NotificationSent() {
	c.sent.Inc()
}

func (c *WatcherCollector) NotificationFailed(transient bool) {
	kind := FailurePermanent
	if transient {
		kind = FailureTransient
	}
	c.failed.WithLabelValues(kind).Inc()
}

func (c *WatcherCollector) SampleSkipped(count int) {
	c.skippedProcesses.Add(float64(count))
}

func (c *WatcherCollector) TrackedProcesses(count int) {
	c.trackedProcesses.Set(float64(count))
}

func (c *WatcherCollector) CooldownEntries(count int) {
	c.cooldownEntries.Set(float64(count))
}

func (c *WatcherCollector) ObserveTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}
