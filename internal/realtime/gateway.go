package realtime

import (
	"github.com/saymain/echokit-server/internal/ai"
	"github.com/saymain/echokit-server/internal/observability"
	"github.com/saymain/echokit-server/internal/registry"
	"github.com/saymain/echokit-server/internal/transcript"
)

// Gateway bundles the per-process collaborators shared by every realtime
// connection: resolved providers, metrics, the transcript archive and the
// live session registry.
type Gateway struct {
	Chat        ai.ChatConfig
	ASR         *ai.ASRClient
	VAD         *ai.VADClient
	TTS         ai.Synthesizer
	Metrics     *observability.Metrics
	Transcripts transcript.Store
	Sessions    *registry.Registry
}

// Attach wires one upgraded socket into a fresh session: its own chat
// history, state, sender goroutine and dispatcher. The caller runs the read
// loop, closes the emitter after the last frame and waits on Done.
func (g *Gateway) Attach(w FrameWriter) (*Handler, *Emitter) {
	state := NewState(ai.NewChatSession(g.Chat))
	emitter := NewEmitter(w, g.Metrics)
	pipeline := NewPipeline(state, emitter, g.ASR, g.VAD, g.TTS, g.Metrics, g.Transcripts, g.Sessions)
	handler := NewHandler(state, emitter, pipeline, g.Chat.Model, g.TTS.Voice(), g.Metrics)
	return handler, emitter
}
