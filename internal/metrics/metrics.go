// Package metrics collects and exposes tick-engine observability data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (per-table counters + time series)
//     for the lightweight JSON /metrics endpoint used by the dashboard.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems (Grafana, Alertmanager, etc.).
//
// Keeping both lets the dashboard work without a Prometheus sidecar
// while still supporting enterprise monitoring stacks.
//
// # Concurrency — hot path
//
// RecordTick is called once per game-loop tick and must be as fast as
// possible. It uses atomic increments for global counters and
// dispatches a lightweight event onto a buffered channel (tsChan) for
// the time-series worker to process asynchronously, so no lock is held
// on the tick path itself.
//
// # Invariants
//
//   - tsChan capacity is 8192 events; events dropped when full are
//     counted in tsDroppedEvents for observability.
//   - The time-series ring buffer holds at most timeSeriesBucketCount
//     buckets (24 * 60 = 1440 for the last 24 hours at 1-minute
//     granularity).
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores tick counters for a single minute bucket.
type TimeSeriesBucket struct {
	Timestamp        time.Time
	Ticks            int64
	TotalTickLatency int64
	Count            int64
}

// Metrics collects and exposes tick-engine runtime metrics.
type Metrics struct {
	TicksProcessed atomic.Int64
	ActiveVMs      atomic.Int64
	ActiveProcesses atomic.Int64

	TickLatencyTotalMicros atomic.Int64
	TickLatencyMaxMicros   atomic.Int64

	PacketsRouted atomic.Int64
	PacketsDropped atomic.Int64

	TerminalSessions atomic.Int64
	SpyConnections   atomic.Int64
	ActiveRuns       atomic.Int64

	// capabilityCalls counts invocations of each `tablename.function`
	// identifier (e.g. "fs.read", "net.send"), keyed by that string.
	capabilityCalls sync.Map

	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

type timeSeriesEvent struct {
	latencyMicros int64
}

var global = &Metrics{startTime: time.Now()}

func init() {
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance.
func Global() *Metrics { return global }

// StartTime returns when the metrics system was initialized.
func StartTime() time.Time { return global.startTime }

// RecordTick records one game-loop tick's latency.
func (m *Metrics) RecordTick(latency time.Duration) {
	micros := latency.Microseconds()
	m.TicksProcessed.Add(1)
	m.TickLatencyTotalMicros.Add(micros)
	updateMax(&m.TickLatencyMaxMicros, micros)
	RecordPrometheusTick(latency)

	select {
	case m.tsChan <- timeSeriesEvent{latencyMicros: micros}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.latencyMicros)
	}
}

func (m *Metrics) applyTimeSeriesEvent(latencyMicros int64) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Ticks++
		bucket.TotalTickLatency += latencyMicros
		bucket.Count++
	}
}

// SetActiveVMs records the current VM count.
func (m *Metrics) SetActiveVMs(n int) {
	m.ActiveVMs.Store(int64(n))
	RecordPrometheusActiveVMs(n)
}

// SetActiveProcesses records the current process count across every VM.
func (m *Metrics) SetActiveProcesses(n int) {
	m.ActiveProcesses.Store(int64(n))
	RecordPrometheusActiveProcesses(n)
}

// RecordCapabilityCall increments the call counter for one
// `table.function` identifier, e.g. "fs.write".
func (m *Metrics) RecordCapabilityCall(table, fn string) {
	key := table + "." + fn
	v, _ := m.capabilityCalls.LoadOrStore(key, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	RecordPrometheusCapabilityCall(table, fn)
}

// RecordPacketRouted records a packet successfully delivered (locally
// queued or handed to the cross-host sink).
func (m *Metrics) RecordPacketRouted() {
	m.PacketsRouted.Add(1)
	RecordPrometheusPacketRouted()
}

// RecordPacketDropped records a packet that could not be delivered.
func (m *Metrics) RecordPacketDropped() {
	m.PacketsDropped.Add(1)
	RecordPrometheusPacketDropped()
}

// SetHubSessions records the current count for each player-facing hub.
func (m *Metrics) SetHubSessions(terminals, spies, runs int) {
	m.TerminalSessions.Store(int64(terminals))
	m.SpyConnections.Store(int64(spies))
	m.ActiveRuns.Store(int64(runs))
	RecordPrometheusHubSessions(terminals, spies, runs)
}

// CapabilityCallStats returns a snapshot of every capability call
// counter recorded so far, keyed by "table.function".
func (m *Metrics) CapabilityCallStats() map[string]int64 {
	out := make(map[string]int64)
	m.capabilityCalls.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Snapshot returns a point-in-time summary of all metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	ticks := m.TicksProcessed.Load()
	avgTickMicros := float64(0)
	if ticks > 0 {
		avgTickMicros = float64(m.TickLatencyTotalMicros.Load()) / float64(ticks)
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"ticks": map[string]interface{}{
			"processed":      ticks,
			"avg_micros":     avgTickMicros,
			"max_micros":     m.TickLatencyMaxMicros.Load(),
			"dropped_events": m.tsDroppedEvents.Load(),
		},
		"vms": map[string]interface{}{
			"active":           m.ActiveVMs.Load(),
			"active_processes": m.ActiveProcesses.Load(),
		},
		"network": map[string]interface{}{
			"packets_routed":  m.PacketsRouted.Load(),
			"packets_dropped": m.PacketsDropped.Load(),
		},
		"hubs": map[string]interface{}{
			"terminal_sessions": m.TerminalSessions.Load(),
			"spy_connections":   m.SpyConnections.Load(),
			"active_runs":       m.ActiveRuns.Load(),
		},
		"capability_calls": m.CapabilityCallStats(),
	}
}

// JSONHandler returns an HTTP handler exposing metrics as JSON.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}

// TimeSeries returns minute-level tick throughput for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avg := float64(0)
		if bucket.Count > 0 {
			avg = float64(bucket.TotalTickLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":         bucket.Timestamp.Format(time.RFC3339),
			"ticks":             bucket.Ticks,
			"avg_latency_micro": avg,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics.
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
