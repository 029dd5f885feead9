package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/saymain/echokit-server/internal/observability"
	"github.com/saymain/echokit-server/internal/protocol"
)

// FrameWriter is the slice of *websocket.Conn the sender writes through.
type FrameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
}

const writeTimeout = 10 * time.Second

// Emitter serializes outbound events onto the socket. Events enqueue in
// FIFO order onto a bounded channel drained by a single sender goroutine;
// a full queue blocks the running turn until the socket catches up. Close
// must come from the producing goroutine after its final Emit.
type Emitter struct {
	events  chan any
	done    chan struct{}
	once    sync.Once
	metrics *observability.Metrics
}

func NewEmitter(w FrameWriter, metrics *observability.Metrics) *Emitter {
	e := &Emitter{
		events:  make(chan any, emitterCapacity),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	go e.send(w)
	return e
}

func (e *Emitter) send(w FrameWriter) {
	defer close(e.done)
	for evt := range e.events {
		_ = w.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := w.WriteJSON(evt); err != nil {
			log.Printf("[ws] write %s: %v", EventTypeOf(evt), err)
			e.metrics.WSWriteErrors.Inc()
			return
		}
		e.metrics.WSMessages.WithLabelValues("outbound", EventTypeOf(evt)).Inc()
	}
}

// Emit queues one event. It reports false once the sender has exited; the
// event is dropped and the turn keeps draining its providers.
func (e *Emitter) Emit(evt any) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.events <- evt:
		return true
	case <-e.done:
		return false
	}
}

// Close lets the sender drain the queue and exit. Idempotent.
func (e *Emitter) Close() {
	e.once.Do(func() { close(e.events) })
}

// Done is closed once the sender goroutine has exited, either after Close
// drained the queue or after a write error.
func (e *Emitter) Done() <-chan struct{} { return e.done }

// EventTypeOf names an event variant for logs and metric labels.
func EventTypeOf(evt any) string {
	switch evt := evt.(type) {
	case protocol.ErrorEvent:
		return string(evt.Type)
	case protocol.SessionCreated:
		return string(evt.Type)
	case protocol.SessionUpdated:
		return string(evt.Type)
	case protocol.ConversationCreated:
		return string(evt.Type)
	case protocol.ConversationItemCreated:
		return string(evt.Type)
	case protocol.InputAudioTranscriptionCompleted:
		return string(evt.Type)
	case protocol.InputAudioBufferCommitted:
		return string(evt.Type)
	case protocol.InputAudioBufferCleared:
		return string(evt.Type)
	case protocol.ConversationInterrupted:
		return string(evt.Type)
	case protocol.ResponseCreated:
		return string(evt.Type)
	case protocol.ResponseDone:
		return string(evt.Type)
	case protocol.ResponseOutputItemAdded:
		return string(evt.Type)
	case protocol.ResponseOutputItemDone:
		return string(evt.Type)
	case protocol.ResponseContentPartAdded:
		return string(evt.Type)
	case protocol.ResponseContentPartDone:
		return string(evt.Type)
	case protocol.ResponseTextDelta:
		return string(evt.Type)
	case protocol.ResponseTextDone:
		return string(evt.Type)
	case protocol.ResponseAudioDelta:
		return string(evt.Type)
	case protocol.ResponseAudioDone:
		return string(evt.Type)
	case protocol.SessionUpdate:
		return string(evt.Type)
	case protocol.InputAudioBufferAppend:
		return string(evt.Type)
	case protocol.InputAudioBufferCommit:
		return string(evt.Type)
	case protocol.InputAudioBufferClear:
		return string(evt.Type)
	case protocol.ConversationItemCreate:
		return string(evt.Type)
	case protocol.ResponseCreate:
		return string(evt.Type)
	case protocol.ResponseCancel:
		return string(evt.Type)
	default:
		return "unknown"
	}
}
