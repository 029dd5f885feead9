package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saymain/echokit-server/internal/observability"
	"github.com/saymain/echokit-server/internal/protocol"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_realtime_%d", metricsSeq.Add(1)))
}

// captureWriter records every event the sender writes, decoded to generic
// maps so tests can assert on the wire shape.
type captureWriter struct {
	mu        sync.Mutex
	events    []map[string]any
	failAfter int // writes before failing; -1 never fails
	writes    int
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{failAfter: -1}
}

func (w *captureWriter) SetWriteDeadline(time.Time) error { return nil }

func (w *captureWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAfter >= 0 && w.writes >= w.failAfter {
		return errors.New("socket gone")
	}
	w.writes++
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	w.events = append(w.events, m)
	return nil
}

func (w *captureWriter) snapshot() []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]map[string]any, len(w.events))
	copy(out, w.events)
	return out
}

func (w *captureWriter) types() []string {
	events := w.snapshot()
	out := make([]string, 0, len(events))
	for _, e := range events {
		t, _ := e["type"].(string)
		out = append(out, t)
	}
	return out
}

func (w *captureWriter) byType(eventType string) []map[string]any {
	var out []map[string]any
	for _, e := range w.snapshot() {
		if t, _ := e["type"].(string); t == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (w *captureWriter) first(t *testing.T, eventType string) map[string]any {
	t.Helper()
	events := w.byType(eventType)
	if len(events) == 0 {
		t.Fatalf("no %s event captured; got %v", eventType, w.types())
	}
	return events[0]
}

// drain closes the emitter and waits for the sender to flush everything.
func drain(t *testing.T, e *Emitter) {
	t.Helper()
	e.Close()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("emitter did not drain in time")
	}
}

func TestEmitterWritesFIFO(t *testing.T) {
	w := newCaptureWriter()
	e := NewEmitter(w, newTestMetrics())

	events := []any{
		protocol.InputAudioBufferCleared{Type: protocol.TypeInputAudioBufferCleared, EventID: "e1"},
		protocol.ConversationInterrupted{Type: protocol.TypeConversationInterrupted, EventID: "e2"},
		protocol.InputAudioBufferCleared{Type: protocol.TypeInputAudioBufferCleared, EventID: "e3"},
	}
	for _, evt := range events {
		if !e.Emit(evt) {
			t.Fatal("Emit() = false, want true")
		}
	}
	drain(t, e)

	got := w.types()
	want := []string{"input_audio_buffer.cleared", "conversation.interrupted", "input_audio_buffer.cleared"}
	if len(got) != len(want) {
		t.Fatalf("wrote %d events, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
	if id, _ := w.snapshot()[0]["event_id"].(string); id != "e1" {
		t.Fatalf("event_id = %q, want %q", id, "e1")
	}
}

func TestEmitterStopsOnWriteError(t *testing.T) {
	w := newCaptureWriter()
	w.failAfter = 1
	e := NewEmitter(w, newTestMetrics())

	e.Emit(protocol.InputAudioBufferCleared{Type: protocol.TypeInputAudioBufferCleared})
	e.Emit(protocol.InputAudioBufferCleared{Type: protocol.TypeInputAudioBufferCleared})

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not exit after write error")
	}

	if e.Emit(protocol.InputAudioBufferCleared{Type: protocol.TypeInputAudioBufferCleared}) {
		t.Fatal("Emit() after sender exit = true, want false")
	}
	if n := len(w.snapshot()); n != 1 {
		t.Fatalf("wrote %d events, want 1", n)
	}
}

func TestEmitterCloseIdempotent(t *testing.T) {
	e := NewEmitter(newCaptureWriter(), newTestMetrics())
	e.Close()
	e.Close()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not exit after Close")
	}
}

func TestEventTypeOf(t *testing.T) {
	evt := protocol.ResponseTextDelta{Type: protocol.TypeResponseTextDelta}
	if got := EventTypeOf(evt); got != "response.text.delta" {
		t.Fatalf("EventTypeOf() = %q, want %q", got, "response.text.delta")
	}
	if got := EventTypeOf(42); got != "unknown" {
		t.Fatalf("EventTypeOf(42) = %q, want %q", got, "unknown")
	}
}
