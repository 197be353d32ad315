package metrics

import (
	"testing"
	"time"
)

func TestNew_StartTimeSet(t *testing.T) {
	before := time.Now()
	m := New()
	after := time.Now()

	if m.startTime.Before(before) || m.startTime.After(after) {
		t.Errorf("startTime %v not in expected range [%v, %v]", m.startTime, before, after)
	}
}

func TestZeroValue_SnapshotSafe(t *testing.T) {
	var m Metrics
	s := m.Snapshot()
	if s.Requests.Total != 0 {
		t.Errorf("expected 0 total requests, got %d", s.Requests.Total)
	}
}

func TestRequestCounters(t *testing.T) {
	m := New()
	m.RequestsTotal.Add(10)
	m.RequestsAnonymized.Add(7)
	m.RequestsPassthrough.Add(2)
	m.RequestsAuth.Add(1)

	s := m.Snapshot()
	if s.Requests.Total != 10 {
		t.Errorf("Total: got %d, want 10", s.Requests.Total)
	}
	if s.Requests.Anonymized != 7 {
		t.Errorf("Anonymized: got %d, want 7", s.Requests.Anonymized)
	}
	if s.Requests.Passthrough != 2 {
		t.Errorf("Passthrough: got %d, want 2", s.Requests.Passthrough)
	}
	if s.Requests.Auth != 1 {
		t.Errorf("Auth: got %d, want 1", s.Requests.Auth)
	}
}

func TestErrorCounters(t *testing.T) {
	m := New()
	m.ErrorsUpstream.Add(3)
	m.ErrorsAnonymize.Add(2)

	s := m.Snapshot()
	if s.Errors.Upstream != 3 {
		t.Errorf("Upstream errors: got %d, want 3", s.Errors.Upstream)
	}
	if s.Errors.Anonymize != 2 {
		t.Errorf("Anonymize errors: got %d, want 2", s.Errors.Anonymize)
	}
}

func TestPIITokenCounters(t *testing.T) {
	m := New()
	m.TokensReplaced.Add(50)
	m.TokensDeanonymized.Add(45)

	s := m.Snapshot()
	if s.PIITokens.Replaced != 50 {
		t.Errorf("TokensReplaced: got %d, want 50", s.PIITokens.Replaced)
	}
	if s.PIITokens.Deanonymized != 45 {
		t.Errorf("TokensDeanonymized: got %d, want 45", s.PIITokens.Deanonymized)
	}
}

func TestRecordAnonLatency_SingleSample(t *testing.T) {
	m := New()
	m.RecordAnonLatency(100 * time.Millisecond)

	s := m.Snapshot()
	if s.Latency.AnonymizationMs.Count != 1 {
		t.Errorf("Count: got %d, want 1", s.Latency.AnonymizationMs.Count)
	}
	if s.Latency.AnonymizationMs.MinMs < 90 || s.Latency.AnonymizationMs.MinMs > 110 {
		t.Errorf("MinMs: got %f, want ~100", s.Latency.AnonymizationMs.MinMs)
	}
}

func TestRecordUpstreamLatency_MinMaxMean(t *testing.T) {
	m := New()
	m.RecordUpstreamLatency(50 * time.Millisecond)
	m.RecordUpstreamLatency(150 * time.Millisecond)
	m.RecordUpstreamLatency(100 * time.Millisecond)

	s := m.Snapshot()
	ls := s.Latency.UpstreamMs
	if ls.Count != 3 {
		t.Errorf("Count: got %d, want 3", ls.Count)
	}
	if ls.MinMs > 60 {
		t.Errorf("MinMs too high: %f", ls.MinMs)
	}
	if ls.MaxMs < 140 {
		t.Errorf("MaxMs too low: %f", ls.MaxMs)
	}
	if ls.MeanMs < 90 || ls.MeanMs > 110 {
		t.Errorf("MeanMs: got %f, want ~100", ls.MeanMs)
	}
}

func TestSnapshotLatency_EmptyIsZeroValue(t *testing.T) {
	m := New()
	s := m.Snapshot()
	if s.Latency.AnonymizationMs.Count != 0 {
		t.Errorf("empty anon latency count should be 0")
	}
	if s.Latency.UpstreamMs.Count != 0 {
		t.Errorf("empty upstream latency count should be 0")
	}
}

func TestSnapshot_UptimePositive(t *testing.T) {
	m := New()
	time.Sleep(5 * time.Millisecond)
	s := m.Snapshot()
	if s.UptimeSecs <= 0 {
		t.Errorf("UptimeSecs should be positive, got %f", s.UptimeSecs)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		input float64
		want  float64
	}{
		{1.236, 1.24},
		{1.234, 1.23},
		{100.0, 100.0},
		{0.0, 0.0},
	}
	for _, c := range cases {
		got := round2(c.input)
		if got != c.want {
			t.Errorf("round2(%f) = %f, want %f", c.input, got, c.want)
		}
	}
}

func TestLatencyStats_Record(t *testing.T) {
	var s latencyStats
	s.record(10)
	s.record(20)
	s.record(15)

	snap := s.snapshot()
	if snap.Count != 3 {
		t.Errorf("Count: got %d, want 3", snap.Count)
	}
	if snap.MinMs != 10 {
		t.Errorf("MinMs: got %f, want 10", snap.MinMs)
	}
	if snap.MaxMs != 20 {
		t.Errorf("MaxMs: got %f, want 20", snap.MaxMs)
	}
	if snap.MeanMs != 15 {
		t.Errorf("MeanMs: got %f, want 15", snap.MeanMs)
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	var s latencyStats
	snap := s.snapshot()
	if snap.Count != 0 || snap.MinMs != 0 || snap.MaxMs != 0 || snap.MeanMs != 0 {
		t.Errorf("empty stats snapshot should be zero, got %+v", snap)
	}
}

func TestRecordDetectionsByLayer(t *testing.T) {
	m := New()
	m.RecordDetections("dictionary", 2)
	m.RecordDetections("ner", 1)
	m.RecordDetections("dictionary", 3)

	s := m.Snapshot()
	if s.DetectionsByLayer["dictionary"] != 5 {
		t.Errorf("dictionary: got %d, want 5", s.DetectionsByLayer["dictionary"])
	}
	if s.DetectionsByLayer["ner"] != 1 {
		t.Errorf("ner: got %d, want 1", s.DetectionsByLayer["ner"])
	}
	if _, present := s.DetectionsByLayer["regex"]; present {
		t.Error("regex should be absent from snapshot when never recorded")
	}
}

func TestRecordDetectionsZeroIsNoOp(t *testing.T) {
	m := New()
	m.RecordDetections("names", 0)
	s := m.Snapshot()
	if _, present := s.DetectionsByLayer["names"]; present {
		t.Error("zero-count record should not create a map entry")
	}
}

func TestSnapshot_ZeroValueDetectionsMapSafe(t *testing.T) {
	var m Metrics
	m.RecordDetections("regex", 4)
	s := m.Snapshot()
	if s.DetectionsByLayer["regex"] != 4 {
		t.Errorf("regex: got %d, want 4 (zero-value Metrics must lazily init its map)", s.DetectionsByLayer["regex"])
	}
}
