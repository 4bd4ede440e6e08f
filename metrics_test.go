package ringrt

import "testing"

func TestMetrics_BasicCounters(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("TotalOps = %d, want 0", snap.TotalOps)
	}

	m.RecordRead(1024, 1_000_000, true)
	m.RecordWrite(2048, 2_000_000, true)
	m.RecordRead(512, 500_000, false)

	snap = m.Snapshot()
	if snap.ReadOps != 2 {
		t.Errorf("ReadOps = %d, want 2", snap.ReadOps)
	}
	if snap.WriteOps != 1 {
		t.Errorf("WriteOps = %d, want 1", snap.WriteOps)
	}
	if snap.ReadBytes != 1024 {
		t.Errorf("ReadBytes = %d, want 1024", snap.ReadBytes)
	}
	if snap.ReadErrors != 1 {
		t.Errorf("ReadErrors = %d, want 1", snap.ReadErrors)
	}

	expectedErrorRate := float64(1) / float64(3) * 100.0
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("ErrorRate = %.2f, want ~%.2f", snap.ErrorRate, expectedErrorRate)
	}
}

func TestMetrics_SpawnCPUAndTimeout(t *testing.T) {
	m := NewMetrics()

	m.RecordTimeout(50_000, true)
	m.RecordSpawnCPU(3_000_000, true)
	m.RecordSpawnCPU(1_000_000, false)

	snap := m.Snapshot()
	if snap.TimeoutOps != 1 || snap.TimeoutErrors != 0 {
		t.Errorf("timeout counters = %+v", snap)
	}
	if snap.SpawnCPUOps != 2 || snap.SpawnCPUErrors != 1 {
		t.Errorf("spawn_cpu counters = %+v", snap)
	}
}

func TestMetrics_TaskLiveTracking(t *testing.T) {
	m := NewMetrics()

	m.RecordTaskLive(1)
	m.RecordTaskLive(5)
	m.RecordTaskLive(3)

	snap := m.Snapshot()
	if snap.MaxTaskLive != 5 {
		t.Errorf("MaxTaskLive = %d, want 5", snap.MaxTaskLive)
	}
	if snap.AvgTaskLive != 3 {
		t.Errorf("AvgTaskLive = %v, want 3", snap.AvgTaskLive)
	}
}

func TestMetrics_LatencyHistogramMonotonic(t *testing.T) {
	m := NewMetrics()

	for _, ns := range []uint64{500, 5_000, 50_000, 5_000_000} {
		m.RecordNoop(ns)
	}

	snap := m.Snapshot()
	for i := 1; i < len(snap.LatencyHistogram); i++ {
		if snap.LatencyHistogram[i] < snap.LatencyHistogram[i-1] {
			t.Fatalf("histogram bucket %d (%d) < bucket %d (%d); cumulative buckets must be non-decreasing",
				i, snap.LatencyHistogram[i], i-1, snap.LatencyHistogram[i-1])
		}
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordNoop(1000)
	m.RecordRead(10, 1000, true)

	m.Reset()

	snap := m.Snapshot()
	if snap.TotalOps != 0 || snap.ReadBytes != 0 {
		t.Errorf("Reset() left nonzero counters: %+v", snap)
	}
}
