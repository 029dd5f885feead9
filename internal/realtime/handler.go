package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/saymain/echokit-server/internal/observability"
	"github.com/saymain/echokit-server/internal/protocol"
)

// Handler dispatches parsed client events against one connection's state.
// Every method runs on the receiver goroutine, so a commit or response turn
// blocks further reads until it finishes.
type Handler struct {
	state    *State
	emitter  *Emitter
	pipeline *Pipeline
	model    string
	voice    string
	metrics  *observability.Metrics
}

func NewHandler(state *State, emitter *Emitter, pipeline *Pipeline, model, voice string, metrics *observability.Metrics) *Handler {
	return &Handler{
		state:    state,
		emitter:  emitter,
		pipeline: pipeline,
		model:    model,
		voice:    voice,
		metrics:  metrics,
	}
}

func (h *Handler) SessionID() string { return h.state.ID() }

// Announce emits the connection greeting: session.created with the
// advertised defaults, then conversation.created.
func (h *Handler) Announce() {
	h.emit(protocol.SessionCreated{
		Type:    protocol.TypeSessionCreated,
		EventID: uuid.NewString(),
		Session: advertisedSession(h.state.ID()),
	})
	h.emit(protocol.ConversationCreated{
		Type:    protocol.TypeConversationCreated,
		EventID: uuid.NewString(),
		Conversation: protocol.Conversation{
			ID:     uuid.NewString(),
			Object: protocol.ObjectConversation,
		},
	})
}

// HandleRaw parses one inbound text frame and dispatches it. Unknown event
// types are logged and skipped; other errors surface to the read loop for
// logging. The socket stays open either way.
func (h *Handler) HandleRaw(ctx context.Context, raw []byte) error {
	evt, err := protocol.ParseClientEvent(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownEventType) {
			log.Printf("[ws] session %s: %v", h.state.ID(), err)
			return nil
		}
		return err
	}
	return h.Handle(ctx, evt)
}

func (h *Handler) Handle(ctx context.Context, evt any) error {
	h.metrics.WSMessages.WithLabelValues("inbound", EventTypeOf(evt)).Inc()
	switch evt := evt.(type) {
	case protocol.SessionUpdate:
		h.handleSessionUpdate(evt)
	case protocol.InputAudioBufferAppend:
		return h.handleAppend(evt)
	case protocol.InputAudioBufferCommit:
		return h.handleCommit(ctx)
	case protocol.InputAudioBufferClear:
		h.handleClear()
	case protocol.ConversationItemCreate:
		h.handleItemCreate(evt)
	case protocol.ResponseCreate:
		return h.handleResponseCreate(ctx)
	case protocol.ResponseCancel:
		h.handleResponseCancel()
	default:
		log.Printf("[ws] session %s: unhandled client event %T", h.state.ID(), evt)
	}
	return nil
}

func (h *Handler) handleSessionUpdate(evt protocol.SessionUpdate) {
	if cfgErr := h.state.ApplyConfig(evt.Session); cfgErr != nil {
		h.emitError(cfgErr.Code, cfgErr.Param, cfgErr.Message)
		return
	}
	h.emit(protocol.SessionUpdated{
		Type:    protocol.TypeSessionUpdated,
		EventID: uuid.NewString(),
		Session: h.state.EffectiveSession(h.model, h.voice),
	})
}

func (h *Handler) handleAppend(evt protocol.InputAudioBufferAppend) error {
	pcm, err := base64.StdEncoding.DecodeString(evt.Audio)
	if err != nil {
		return fmt.Errorf("decode appended audio: %w", err)
	}
	h.state.AppendAudio(pcm)
	return nil
}

func (h *Handler) handleCommit(ctx context.Context) error {
	create, err := h.pipeline.CommitAudio(ctx)
	if err != nil {
		return err
	}
	if !create {
		return nil
	}
	return h.pipeline.GenerateResponse(ctx)
}

func (h *Handler) handleClear() {
	h.state.ClearAudio()
	h.emit(protocol.InputAudioBufferCleared{
		Type:    protocol.TypeInputAudioBufferCleared,
		EventID: uuid.NewString(),
	})
}

// handleItemCreate folds a client-built item into the chat history and
// echoes it back. Unsupported shapes only log; the echo still goes out.
func (h *Handler) handleItemCreate(evt protocol.ConversationItemCreate) {
	item := evt.Item
	switch item.Type {
	case protocol.ItemTypeMessage:
		switch item.Role {
		case protocol.RoleUser:
			if item.Content != nil {
				h.state.History().AddUserMessage(item.JoinedText())
			}
		case protocol.RoleAssistant:
			if item.Content != nil {
				h.state.History().AddAssistantMessage(item.JoinedText())
			}
		case protocol.RoleSystem:
			if item.Content != nil {
				h.state.History().ReplaceLeadSystemPrompt(item.JoinedText())
			}
		default:
			log.Printf("[ws] session %s: unsupported item role %q", h.state.ID(), item.Role)
		}
	case protocol.ItemTypeFunctionCall:
		if item.Arguments != "" {
			h.state.History().AddToolCall(item.ID, item.Name, item.Arguments)
		}
	case protocol.ItemTypeFunctionCallOutput:
		if item.Output != "" {
			h.state.History().AddToolOutput(item.ID, item.Output)
		}
	default:
		log.Printf("[ws] session %s: unsupported item type %q", h.state.ID(), item.Type)
	}
	h.emit(protocol.ConversationItemCreated{
		Type:           protocol.TypeConversationItemCreated,
		EventID:        uuid.NewString(),
		PreviousItemID: evt.PreviousItemID,
		Item:           item,
	})
}

func (h *Handler) handleResponseCreate(ctx context.Context) error {
	if h.state.Generating() {
		h.emitError("response_in_progress", "", "A response is already being generated")
		return nil
	}
	return h.pipeline.GenerateResponse(ctx)
}

// handleResponseCancel flips the generation gate and acknowledges with
// conversation.interrupted. Cancellation is not preemptive; a turn already
// running finishes on its own.
func (h *Handler) handleResponseCancel() {
	h.state.SetGenerating(false)
	h.emit(protocol.ConversationInterrupted{
		Type:    protocol.TypeConversationInterrupted,
		EventID: uuid.NewString(),
	})
}

func (h *Handler) emitError(code, param, message string) {
	h.emit(protocol.ErrorEvent{
		Type:    protocol.TypeError,
		EventID: uuid.NewString(),
		Error: protocol.ErrorDetails{
			Type:    protocol.ErrorTypeInvalidRequest,
			Code:    code,
			Message: message,
			Param:   param,
		},
	})
}

func (h *Handler) emit(evt any) { _ = h.emitter.Emit(evt) }

func advertisedSession(id string) protocol.Session {
	temp := DefaultTemperature
	return protocol.Session{
		ID:                id,
		Object:            protocol.ObjectSession,
		Model:             DefaultModel,
		Modalities:        []protocol.Modality{protocol.ModalityText, protocol.ModalityAudio},
		Instructions:      DefaultInstructions,
		Voice:             DefaultVoice,
		InputAudioFormat:  protocol.AudioFormatPCM16,
		OutputAudioFormat: protocol.AudioFormatPCM16,
		TurnDetection:     &protocol.TurnDetection{Type: protocol.TurnDetectionNone},
		ToolChoice:        protocol.ToolChoiceAuto,
		Temperature:       &temp,
	}
}
