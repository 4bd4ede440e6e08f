package ringrt

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks per-op-kind counters and a shared latency histogram
// for one runtime instance. All fields are safe for concurrent access,
// though in practice only the single driver thread ever writes to them.
type Metrics struct {
	NoopOps     atomic.Uint64
	ReadOps     atomic.Uint64
	WriteOps    atomic.Uint64
	TimeoutOps  atomic.Uint64
	CloseOps    atomic.Uint64
	SpawnOps    atomic.Uint64
	SpawnCPUOps atomic.Uint64

	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	ReadErrors     atomic.Uint64
	WriteErrors    atomic.Uint64
	TimeoutErrors  atomic.Uint64
	SpawnCPUErrors atomic.Uint64

	// Task table occupancy, sampled on spawn and when a task reaches a
	// terminal result.
	TaskLiveTotal atomic.Uint64
	TaskLiveCount atomic.Uint64
	MaxTaskLive   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// LatencyBuckets[i] is the cumulative count of ops with latency <=
	// LatencyBuckets[i] nanoseconds.
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance with its start time stamped to
// now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordNoop records a noop completion.
func (m *Metrics) RecordNoop(latencyNs uint64) {
	m.NoopOps.Add(1)
	m.recordLatency(latencyNs)
}

// RecordRead records a read completion.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write completion.
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTimeout records a timeout completion.
func (m *Metrics) RecordTimeout(latencyNs uint64, success bool) {
	m.TimeoutOps.Add(1)
	if !success {
		m.TimeoutErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordClose records a close completion.
func (m *Metrics) RecordClose(latencyNs uint64) {
	m.CloseOps.Add(1)
	m.recordLatency(latencyNs)
}

// RecordSpawn records a successful spawn.
func (m *Metrics) RecordSpawn() {
	m.SpawnOps.Add(1)
}

// RecordSpawnCPU records a completed spawn_cpu round trip.
func (m *Metrics) RecordSpawnCPU(latencyNs uint64, success bool) {
	m.SpawnCPUOps.Add(1)
	if !success {
		m.SpawnCPUErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTaskLive records the task table's live count immediately after
// a spawn or after a task reaches a terminal result. A terminal task
// whose teardown is deferred still counts as live, and the deferred
// teardown itself is not sampled.
func (m *Metrics) RecordTaskLive(live uint32) {
	m.TaskLiveTotal.Add(uint64(live))
	m.TaskLiveCount.Add(1)
	for {
		current := m.MaxTaskLive.Load()
		if live <= current {
			break
		}
		if m.MaxTaskLive.CompareAndSwap(current, live) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop stamps the runtime's stop time.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics' counters plus
// derived statistics.
type MetricsSnapshot struct {
	NoopOps     uint64
	ReadOps     uint64
	WriteOps    uint64
	TimeoutOps  uint64
	CloseOps    uint64
	SpawnOps    uint64
	SpawnCPUOps uint64

	ReadBytes  uint64
	WriteBytes uint64

	ReadErrors     uint64
	WriteErrors    uint64
	TimeoutErrors  uint64
	SpawnCPUErrors uint64

	AvgTaskLive float64
	MaxTaskLive uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps  uint64
	ErrorRate float64
}

// Snapshot copies out the current counters and computes derived
// statistics (averages, rates, latency percentiles).
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		NoopOps:        m.NoopOps.Load(),
		ReadOps:        m.ReadOps.Load(),
		WriteOps:       m.WriteOps.Load(),
		TimeoutOps:     m.TimeoutOps.Load(),
		CloseOps:       m.CloseOps.Load(),
		SpawnOps:       m.SpawnOps.Load(),
		SpawnCPUOps:    m.SpawnCPUOps.Load(),
		ReadBytes:      m.ReadBytes.Load(),
		WriteBytes:     m.WriteBytes.Load(),
		ReadErrors:     m.ReadErrors.Load(),
		WriteErrors:    m.WriteErrors.Load(),
		TimeoutErrors:  m.TimeoutErrors.Load(),
		SpawnCPUErrors: m.SpawnCPUErrors.Load(),
		MaxTaskLive:    m.MaxTaskLive.Load(),
	}

	snap.TotalOps = snap.NoopOps + snap.ReadOps + snap.WriteOps + snap.TimeoutOps + snap.CloseOps + snap.SpawnCPUOps

	taskLiveTotal := m.TaskLiveTotal.Load()
	taskLiveCount := m.TaskLiveCount.Load()
	if taskLiveCount > 0 {
		snap.AvgTaskLive = float64(taskLiveTotal) / float64(taskLiveCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	totalErrors := snap.ReadErrors + snap.WriteErrors + snap.TimeoutErrors + snap.SpawnCPUErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter, useful between test cases.
func (m *Metrics) Reset() {
	m.NoopOps.Store(0)
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.TimeoutOps.Store(0)
	m.CloseOps.Store(0)
	m.SpawnOps.Store(0)
	m.SpawnCPUOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.TimeoutErrors.Store(0)
	m.SpawnCPUErrors.Store(0)
	m.TaskLiveTotal.Store(0)
	m.TaskLiveCount.Store(0)
	m.MaxTaskLive.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}
