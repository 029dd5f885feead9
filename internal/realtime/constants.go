package realtime

import "time"

// StandardErrorResponse replaces the assistant text whenever the model call
// fails or yields nothing usable. Substituting it (instead of erroring out)
// keeps the event ladder intact: every response.created still reaches
// response.done.
const StandardErrorResponse = "抱歉，我没能理解您的回复。请您换种表达方式重新说一下"

// Session defaults advertised in session.created and filled into
// session.updated for fields the client left unset.
const (
	DefaultModel        = "gpt-4o-realtime-preview"
	DefaultVoice        = "default"
	DefaultInstructions = "You are a helpful assistant."
	DefaultTemperature  = 0.8
)

// Audio geometry. Clients append raw PCM16 mono at 24 kHz; synthesized
// speech leaves the socket as PCM16 mono at 16 kHz.
const (
	InputSampleRate  = 24000
	OutputSampleRate = 16000

	// wavFrameSamples chunks decoded TTS clips into audio deltas.
	wavFrameSamples = 8000
	wavFrameBytes   = wavFrameSamples * 2

	// streamFrameBytes chunks streamed TTS bodies. The residual shorter
	// frame flushes after the stream ends.
	streamFrameBytes = 3200
)

// emitterCapacity bounds the outbound event queue. A full queue blocks the
// running turn until the socket drains.
const emitterCapacity = 1024

const transcriptSaveTimeout = 2 * time.Second
