package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the tick engine.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	tickDuration  prometheus.Histogram
	ticksTotal    prometheus.Counter
	activeVMs     prometheus.Gauge
	activeProcs   prometheus.Gauge

	capabilityCallsTotal *prometheus.CounterVec

	packetsRoutedTotal  prometheus.Counter
	packetsDroppedTotal prometheus.Counter

	terminalSessions prometheus.Gauge
	spyConnections   prometheus.Gauge
	activeRuns       prometheus.Gauge

	uptime prometheus.GaugeFunc
}

var defaultTickBuckets = []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, tickBucketsMicros []float64) {
	if len(tickBucketsMicros) == 0 {
		tickBucketsMicros = defaultTickBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_microseconds",
			Help:      "Duration of a single game-loop tick across every VM",
			Buckets:   tickBucketsMicros,
		}),

		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of game-loop ticks processed",
		}),

		activeVMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_vms",
			Help:      "Number of VMs currently registered with the game loop",
		}),

		activeProcs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_processes",
			Help:      "Number of running processes across every VM",
		}),

		capabilityCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Total calls into a capability table function",
		}, []string{"table", "function"}),

		packetsRoutedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_routed_total",
			Help:      "Total packets successfully routed",
		}),

		packetsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Total packets that could not be delivered",
		}),

		terminalSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "terminal_sessions",
			Help:      "Active interactive terminal sessions",
		}),

		spyConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spy_connections",
			Help:      "Active process-spy connections",
		}),

		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Active one-shot process runs",
		}),
	}

	pm.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since the daemon started",
	}, func() float64 {
		return time.Since(StartTime()).Seconds()
	})

	registry.MustRegister(
		pm.tickDuration,
		pm.ticksTotal,
		pm.activeVMs,
		pm.activeProcs,
		pm.capabilityCallsTotal,
		pm.packetsRoutedTotal,
		pm.packetsDroppedTotal,
		pm.terminalSessions,
		pm.spyConnections,
		pm.activeRuns,
		pm.uptime,
	)

	promMetrics = pm
}

func RecordPrometheusTick(latency time.Duration) {
	if promMetrics == nil {
		return
	}
	promMetrics.ticksTotal.Inc()
	promMetrics.tickDuration.Observe(float64(latency.Microseconds()))
}

func RecordPrometheusActiveVMs(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeVMs.Set(float64(n))
}

func RecordPrometheusActiveProcesses(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeProcs.Set(float64(n))
}

func RecordPrometheusCapabilityCall(table, fn string) {
	if promMetrics == nil {
		return
	}
	promMetrics.capabilityCallsTotal.WithLabelValues(table, fn).Inc()
}

func RecordPrometheusPacketRouted() {
	if promMetrics == nil {
		return
	}
	promMetrics.packetsRoutedTotal.Inc()
}

func RecordPrometheusPacketDropped() {
	if promMetrics == nil {
		return
	}
	promMetrics.packetsDroppedTotal.Inc()
}

func RecordPrometheusHubSessions(terminals, spies, runs int) {
	if promMetrics == nil {
		return
	}
	promMetrics.terminalSessions.Set(float64(terminals))
	promMetrics.spyConnections.Set(float64(spies))
	promMetrics.activeRuns.Set(float64(runs))
}

// PrometheusHandler returns an HTTP handler for Prometheus scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the registry, for custom collectors.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
