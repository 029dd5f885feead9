package ai

import (
	"context"
	"io"
)

// Speech is one synthesis result. Blob providers fill WAV with a complete
// clip; streaming providers fill PCM with a live body of raw little-endian
// 16-bit mono samples. Exactly one field is set, and a PCM body must be
// closed by the caller.
type Speech struct {
	WAV []byte
	PCM io.ReadCloser
}

// Synthesizer converts one text chunk into audio.
type Synthesizer interface {
	// Voice names the configured speaker.
	Voice() string
	Speak(ctx context.Context, text string) (Speech, error)
}
