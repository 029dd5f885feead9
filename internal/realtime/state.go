package realtime

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/saymain/echokit-server/internal/ai"
	"github.com/saymain/echokit-server/internal/protocol"
)

// ConfigError rejects a session.update without closing the socket. Handlers
// map it onto a protocol error event.
type ConfigError struct {
	Code    string
	Param   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Param, e.Message)
}

// State is everything one connection accumulates between events: the
// negotiated session config, the uncommitted audio buffer, the chat history
// and the single-response gate. It is confined to the connection's receiver
// goroutine and needs no locking.
type State struct {
	id         string
	cfg        protocol.SessionConfig
	buffer     []byte
	history    *ai.ChatSession
	generating bool
}

func NewState(history *ai.ChatSession) *State {
	return &State{id: uuid.NewString(), history: history}
}

func (s *State) ID() string { return s.id }

func (s *State) History() *ai.ChatSession { return s.history }

func (s *State) Config() protocol.SessionConfig { return s.cfg }

// ApplyConfig validates and stores a session.update payload. The stored
// config is replaced wholesale, not merged; clients resend the full desired
// state on every update.
func (s *State) ApplyConfig(cfg protocol.SessionConfig) *ConfigError {
	if cfg.InputAudioFormat != nil && *cfg.InputAudioFormat != protocol.AudioFormatPCM16 {
		return &ConfigError{
			Code:    "unsupported_audio_format",
			Param:   "input_audio_format",
			Message: "Only PCM16 input audio format is supported",
		}
	}
	if cfg.OutputAudioFormat != nil && *cfg.OutputAudioFormat != protocol.AudioFormatPCM16 {
		return &ConfigError{
			Code:    "unsupported_audio_format",
			Param:   "output_audio_format",
			Message: "Only PCM16 output audio format is supported",
		}
	}
	if cfg.TurnDetection != nil && cfg.TurnDetection.Type == protocol.TurnDetectionServerVAD {
		return &ConfigError{
			Code:    "unsupported_turn_detection",
			Param:   "turn_detection.type",
			Message: "Server VAD turn detection is not supported",
		}
	}
	s.cfg = cfg
	return nil
}

func (s *State) AppendAudio(pcm []byte) {
	s.buffer = append(s.buffer, pcm...)
}

// TakeAudio returns the buffered PCM and leaves the buffer empty.
func (s *State) TakeAudio() []byte {
	pcm := s.buffer
	s.buffer = nil
	return pcm
}

func (s *State) ClearAudio() { s.buffer = nil }

func (s *State) BufferedBytes() int { return len(s.buffer) }

func (s *State) Generating() bool { return s.generating }

func (s *State) SetGenerating(v bool) { s.generating = v }

// LastRole reports the role of the newest non-system history message.
func (s *State) LastRole() (ai.Role, bool) { return s.history.LastRole() }

// EffectiveSession renders the stored config as a full session resource,
// filling defaults for anything the client left unset. Model and voice come
// from the resolved providers, never from the client.
func (s *State) EffectiveSession(model, voice string) protocol.Session {
	sess := protocol.Session{
		ID:                      s.id,
		Object:                  protocol.ObjectSession,
		Model:                   model,
		Modalities:              []protocol.Modality{protocol.ModalityText, protocol.ModalityAudio},
		Instructions:            DefaultInstructions,
		Voice:                   voice,
		InputAudioFormat:        protocol.AudioFormatPCM16,
		OutputAudioFormat:       protocol.AudioFormatPCM16,
		InputAudioTranscription: s.cfg.InputAudioTranscription,
		TurnDetection:           s.cfg.TurnDetection,
		Tools:                   s.cfg.Tools,
		ToolChoice:              s.cfg.ToolChoice,
		Temperature:             s.cfg.Temperature,
		MaxOutputTokens:         s.cfg.MaxOutputTokens,
	}
	if len(s.cfg.Modalities) > 0 {
		sess.Modalities = s.cfg.Modalities
	}
	if s.cfg.Instructions != nil {
		sess.Instructions = *s.cfg.Instructions
	}
	if s.cfg.InputAudioFormat != nil {
		sess.InputAudioFormat = *s.cfg.InputAudioFormat
	}
	if s.cfg.OutputAudioFormat != nil {
		sess.OutputAudioFormat = *s.cfg.OutputAudioFormat
	}
	return sess
}
