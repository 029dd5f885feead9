package observability

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

var metricsSeq atomic.Int64

func newTestMetrics() *Metrics {
	return NewMetrics(fmt.Sprintf("test_observability_%d", metricsSeq.Add(1)))
}

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe("tts_first_audio", 500)
	w.Observe("tts_first_audio", 700)
	w.Observe("tts_first_audio", 900)
	w.ObserveIndicator("vad_silence")
	w.ObserveIndicator("vad_silence")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "tts_first_audio" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "tts_first_audio")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 1200 {
		t.Fatalf("TargetP95MS = %.2f, want 1200", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "vad_silence" {
		t.Fatalf("Indicators[0].Name = %q, want %q", snap.Indicators[0].Name, "vad_silence")
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want %d", snap.Indicators[0].Count, 2)
	}
}

func TestTurnStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(4)
	for i := 1; i <= 10; i++ {
		w.Observe("turn_total", float64(i*100))
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", s.Samples)
	}
	if s.LastMS != 1000 {
		t.Fatalf("LastMS = %.2f, want 1000", s.LastMS)
	}
	// Only the four newest observations (700..1000) survive.
	if s.AvgMS != 850 {
		t.Fatalf("AvgMS = %.2f, want 850", s.AvgMS)
	}
}

func TestTurnStageWindowIgnoresInvalid(t *testing.T) {
	w := newTurnStageWindow(4)
	w.Observe("", 10)
	w.Observe("llm_total", -1)
	w.ObserveIndicator("  ")

	snap := w.Snapshot()
	if len(snap.Stages) != 0 {
		t.Fatalf("len(Stages) = %d, want 0", len(snap.Stages))
	}
	if len(snap.Indicators) != 0 {
		t.Fatalf("len(Indicators) = %d, want 0", len(snap.Indicators))
	}
}

func TestMetricsTurnStageRoundTrip(t *testing.T) {
	m := newTestMetrics()
	m.ObserveTurnStage("llm_first_chunk", 250*time.Millisecond)
	m.ObserveTurnIndicator("llm_fallback")

	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	if snap.Stages[0].Stage != "llm_first_chunk" {
		t.Fatalf("Stage = %q, want %q", snap.Stages[0].Stage, "llm_first_chunk")
	}
	if snap.Stages[0].LastMS != 250 {
		t.Fatalf("LastMS = %.2f, want 250", snap.Stages[0].LastMS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Name != "llm_fallback" {
		t.Fatalf("Indicators = %+v, want one llm_fallback", snap.Indicators)
	}
}
