package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the summarization pipeline.
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec
	CyclesDropped     prometheus.Counter
	CanvasCreates     prometheus.Counter
	CanvasUpdates     prometheus.Counter
	FallbackPosts     prometheus.Counter
	SummarizerErrors  prometheus.Counter
	BootstrapRuns     prometheus.Counter
	BufferedMessages  prometheus.Gauge
	ActiveChannels    prometheus.Gauge
	CycleDuration     prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide metrics instance, registering the
// instruments on first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "paper_sync_cycles_total",
				Help: "Synchronization cycles run, by trigger reason",
			}, []string{"reason"}),
			CyclesDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "paper_sync_cycles_dropped_total",
				Help: "Cycle triggers dropped because the channel was busy",
			}),
			CanvasCreates: promauto.NewCounter(prometheus.CounterOpts{
				Name: "paper_canvas_creates_total",
				Help: "Canvas documents created",
			}),
			CanvasUpdates: promauto.NewCounter(prometheus.CounterOpts{
				Name: "paper_canvas_updates_total",
				Help: "Canvas body replacements issued",
			}),
			FallbackPosts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "paper_fallback_posts_total",
				Help: "Summaries posted as plain messages after canvas access was denied",
			}),
			SummarizerErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "paper_summarizer_errors_total",
				Help: "Summarization gateway failures",
			}),
			BootstrapRuns: promauto.NewCounter(prometheus.CounterOpts{
				Name: "paper_bootstrap_runs_total",
				Help: "Bootstrap history imports executed",
			}),
			BufferedMessages: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "paper_buffered_messages",
				Help: "Messages currently buffered across all channels",
			}),
			ActiveChannels: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "paper_active_channels",
				Help: "Channel state entries currently tracked",
			}),
			CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "paper_sync_cycle_duration_seconds",
				Help:    "Wall time of one synchronization cycle",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return metricsInstance
}

// RecordCycle counts one completed cycle for the given trigger reason.
func (m *Metrics) RecordCycle(reason string) {
	if m == nil || m.CyclesTotal == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(reason).Inc()
}

// RecordDropped counts a trigger dropped on the busy flag.
func (m *Metrics) RecordDropped() {
	if m == nil || m.CyclesDropped == nil {
		return
	}
	m.CyclesDropped.Inc()
}
