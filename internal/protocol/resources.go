package protocol

import (
	"encoding/json"
	"strings"
)

// Object type markers carried by realtime resources.
const (
	ObjectSession      = "realtime.session"
	ObjectConversation = "realtime.conversation"
	ObjectItem         = "realtime.item"
	ObjectResponse     = "realtime.response"
)

// Modality selects which output channels a response produces.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// AudioFormat names a wire audio encoding. Only PCM16 is supported.
type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
	AudioFormatG711ALaw AudioFormat = "g711_alaw"
)

// TurnDetectionType names a turn segmentation strategy. Server-side VAD is
// not supported; turn-taking stays client-driven via explicit commits.
type TurnDetectionType string

const (
	TurnDetectionNone        TurnDetectionType = "none"
	TurnDetectionServerVAD   TurnDetectionType = "server_vad"
	TurnDetectionSemanticVAD TurnDetectionType = "semantic_vad"
)

type TurnDetection struct {
	Type              TurnDetectionType `json:"type"`
	Threshold         float64           `json:"threshold,omitempty"`
	PrefixPaddingMs   int               `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int               `json:"silence_duration_ms,omitempty"`
	CreateResponse    *bool             `json:"create_response,omitempty"`
}

type TranscriptionConfig struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

type Tool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SessionConfig is the client-settable portion of a session. All fields are
// optional; nil means "not set" and read sites fall back to defaults.
type SessionConfig struct {
	Modalities              []Modality           `json:"modalities,omitempty"`
	Instructions            *string              `json:"instructions,omitempty"`
	InputAudioFormat        *AudioFormat         `json:"input_audio_format,omitempty"`
	OutputAudioFormat       *AudioFormat         `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	Tools                   []Tool               `json:"tools,omitempty"`
	ToolChoice              ToolChoice           `json:"tool_choice,omitempty"`
	Temperature             *float64             `json:"temperature,omitempty"`
	MaxOutputTokens         *int                 `json:"max_output_tokens,omitempty"`
}

// HasAudioModality reports whether the stored config explicitly enables the
// audio output channel. An unset modalities list means text-only synthesis.
func (c SessionConfig) HasAudioModality() bool {
	for _, m := range c.Modalities {
		if m == ModalityAudio {
			return true
		}
	}
	return false
}

// CreateResponse reports whether a committed buffer should start a response
// turn. Defaults to true when turn_detection or create_response is unset.
func (c SessionConfig) CreateResponse() bool {
	if c.TurnDetection == nil || c.TurnDetection.CreateResponse == nil {
		return true
	}
	return *c.TurnDetection.CreateResponse
}

// Session is the full session resource echoed in session.created/updated.
type Session struct {
	ID                      string               `json:"id"`
	Object                  string               `json:"object"`
	Model                   string               `json:"model"`
	Modalities              []Modality           `json:"modalities"`
	Instructions            string               `json:"instructions"`
	Voice                   string               `json:"voice"`
	InputAudioFormat        AudioFormat          `json:"input_audio_format"`
	OutputAudioFormat       AudioFormat          `json:"output_audio_format"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	Tools                   []Tool               `json:"tools,omitempty"`
	ToolChoice              ToolChoice           `json:"tool_choice,omitempty"`
	Temperature             *float64             `json:"temperature,omitempty"`
	MaxOutputTokens         *int                 `json:"max_output_tokens,omitempty"`
}

type Conversation struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

// ContentPartType tags the ContentPart union.
type ContentPartType string

const (
	ContentTypeText       ContentPartType = "text"
	ContentTypeInputText  ContentPartType = "input_text"
	ContentTypeInputAudio ContentPartType = "input_audio"
	ContentTypeAudio      ContentPartType = "audio"
)

// ContentPart is one element of a message item's content. Text kinds carry
// text; audio kinds carry base64 PCM and an optional transcript.
type ContentPart struct {
	Type       ContentPartType `json:"type"`
	Text       string          `json:"text,omitempty"`
	Audio      string          `json:"audio,omitempty"`
	Transcript *string         `json:"transcript,omitempty"`
}

// MarshalJSON keeps the text field present (even empty) for text kinds and
// the audio field present for input_audio, matching the wire traces clients
// are written against.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case ContentTypeText, ContentTypeInputText:
		return json.Marshal(struct {
			Type ContentPartType `json:"type"`
			Text string          `json:"text"`
		}{p.Type, p.Text})
	case ContentTypeInputAudio:
		return json.Marshal(struct {
			Type       ContentPartType `json:"type"`
			Audio      string          `json:"audio"`
			Transcript *string         `json:"transcript,omitempty"`
		}{p.Type, p.Audio, p.Transcript})
	default:
		return json.Marshal(struct {
			Type       ContentPartType `json:"type"`
			Audio      string          `json:"audio,omitempty"`
			Transcript *string         `json:"transcript,omitempty"`
		}{p.Type, p.Audio, p.Transcript})
	}
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

func InputTextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeInputText, Text: text}
}

func InputAudioPart(audioB64, transcript string) ContentPart {
	return ContentPart{Type: ContentTypeInputAudio, Audio: audioB64, Transcript: &transcript}
}

func AudioPart() ContentPart {
	return ContentPart{Type: ContentTypeAudio}
}

func AudioTranscriptPart(transcript string) ContentPart {
	return ContentPart{Type: ContentTypeAudio, Transcript: &transcript}
}

// ItemType tags conversation items.
type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

type ItemRole string

const (
	RoleUser      ItemRole = "user"
	RoleAssistant ItemRole = "assistant"
	RoleSystem    ItemRole = "system"
)

type ConversationItem struct {
	ID        string        `json:"id,omitempty"`
	Object    string        `json:"object,omitempty"`
	Type      ItemType      `json:"type"`
	Status    string        `json:"status,omitempty"`
	Role      ItemRole      `json:"role,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// JoinedText concatenates the textual payload of every content part: the
// text of text/input_text parts and the transcript (when present) of audio
// parts, single-space joined.
func (item ConversationItem) JoinedText() string {
	parts := make([]string, 0, len(item.Content))
	for _, part := range item.Content {
		switch part.Type {
		case ContentTypeText, ContentTypeInputText:
			parts = append(parts, part.Text)
		case ContentTypeInputAudio, ContentTypeAudio:
			if part.Transcript != nil {
				parts = append(parts, *part.Transcript)
			}
		}
	}
	return strings.Join(parts, " ")
}

type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
)

type Response struct {
	ID     string             `json:"id"`
	Object string             `json:"object"`
	Status ResponseStatus     `json:"status"`
	Output []ConversationItem `json:"output"`
}

// ErrorDetails is the payload of an error event.
type ErrorDetails struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeServer         = "server_error"
)
