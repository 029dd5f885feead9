package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies realtime event variants on both directions of the
// socket.
type EventType string

// Client → server.
const (
	TypeSessionUpdate          EventType = "session.update"
	TypeInputAudioBufferAppend EventType = "input_audio_buffer.append"
	TypeInputAudioBufferCommit EventType = "input_audio_buffer.commit"
	TypeInputAudioBufferClear  EventType = "input_audio_buffer.clear"
	TypeConversationItemCreate EventType = "conversation.item.create"
	TypeResponseCreate         EventType = "response.create"
	TypeResponseCancel         EventType = "response.cancel"
)

// Server → client.
const (
	TypeError                            EventType = "error"
	TypeSessionCreated                   EventType = "session.created"
	TypeSessionUpdated                   EventType = "session.updated"
	TypeConversationCreated              EventType = "conversation.created"
	TypeConversationItemCreated          EventType = "conversation.item.created"
	TypeInputAudioTranscriptionCompleted EventType = "conversation.item.input_audio_transcription.completed"
	TypeInputAudioBufferCommitted        EventType = "input_audio_buffer.committed"
	TypeInputAudioBufferCleared          EventType = "input_audio_buffer.cleared"
	TypeConversationInterrupted          EventType = "conversation.interrupted"
	TypeResponseCreated                  EventType = "response.created"
	TypeResponseDone                     EventType = "response.done"
	TypeResponseOutputItemAdded          EventType = "response.output_item.added"
	TypeResponseOutputItemDone           EventType = "response.output_item.done"
	TypeResponseContentPartAdded         EventType = "response.content_part.added"
	TypeResponseContentPartDone          EventType = "response.content_part.done"
	TypeResponseTextDelta                EventType = "response.text.delta"
	TypeResponseTextDone                 EventType = "response.text.done"
	TypeResponseAudioDelta               EventType = "response.audio.delta"
	TypeResponseAudioDone                EventType = "response.audio.done"
)

// ErrUnknownEventType marks inbound variants the gateway does not dispatch
// on. Callers log and move on; the socket stays open.
var ErrUnknownEventType = errors.New("unknown client event type")

type Envelope struct {
	Type EventType `json:"type"`
}

type SessionUpdate struct {
	Type    EventType     `json:"type"`
	EventID string        `json:"event_id,omitempty"`
	Session SessionConfig `json:"session"`
}

type InputAudioBufferAppend struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"`
	Audio   string    `json:"audio"`
}

type InputAudioBufferCommit struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"`
}

type InputAudioBufferClear struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"`
}

type ConversationItemCreate struct {
	Type           EventType        `json:"type"`
	EventID        string           `json:"event_id,omitempty"`
	PreviousItemID *string          `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

type ResponseCreate struct {
	Type     EventType       `json:"type"`
	EventID  string          `json:"event_id,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type ResponseCancel struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"`
}

// ParseClientEvent decodes one inbound text frame into its variant struct.
// Unknown variants return ErrUnknownEventType wrapped with the offending
// type tag.
func ParseClientEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSessionUpdate:
		var evt SessionUpdate
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case TypeInputAudioBufferAppend:
		var evt InputAudioBufferAppend
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case TypeInputAudioBufferCommit:
		var evt InputAudioBufferCommit
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case TypeInputAudioBufferClear:
		var evt InputAudioBufferClear
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case TypeConversationItemCreate:
		var evt ConversationItemCreate
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, err
		}
		if evt.Item.Type == "" {
			return nil, errors.New("invalid conversation.item.create: missing item type")
		}
		return evt, nil
	case TypeResponseCreate:
		var evt ResponseCreate
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case TypeResponseCancel:
		var evt ResponseCancel
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}
