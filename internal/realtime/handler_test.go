package realtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/saymain/echokit-server/internal/ai"
)

type handlerFixture struct {
	*turnFixture
	handler *Handler
}

func newHandlerFixture(t *testing.T, chatURL, asrURL string, tts ai.Synthesizer) *handlerFixture {
	t.Helper()
	fx := newTurnFixture(t, chatURL, asrURL, "", tts)
	h := NewHandler(fx.state, fx.emit, fx.pipe, "test-model", tts.Voice(), fx.metrics)
	return &handlerFixture{turnFixture: fx, handler: h}
}

func (fx *handlerFixture) handleRaw(t *testing.T, raw string) {
	t.Helper()
	if err := fx.handler.HandleRaw(context.Background(), []byte(raw)); err != nil {
		t.Fatalf("HandleRaw(%s) error = %v", raw, err)
	}
}

func TestAnnounceEmitsSessionThenConversation(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handler.Announce()
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{"session.created", "conversation.created"})

	sc := fx.writer.first(t, "session.created")
	sess, _ := sc["session"].(map[string]any)
	if sess["id"] != fx.state.ID() {
		t.Fatalf("session id = %v, want %q", sess["id"], fx.state.ID())
	}
	if sess["model"] != DefaultModel || sess["voice"] != DefaultVoice {
		t.Fatalf("advertised model/voice = %v/%v", sess["model"], sess["voice"])
	}
	if sess["input_audio_format"] != "pcm16" || sess["output_audio_format"] != "pcm16" {
		t.Fatalf("advertised formats = %v/%v, want pcm16", sess["input_audio_format"], sess["output_audio_format"])
	}
	td, _ := sess["turn_detection"].(map[string]any)
	if td["type"] != "none" {
		t.Fatalf("turn_detection = %v, want none", td)
	}
	if temp, _ := sess["temperature"].(float64); temp != DefaultTemperature {
		t.Fatalf("temperature = %v, want %v", sess["temperature"], DefaultTemperature)
	}

	cc := fx.writer.first(t, "conversation.created")
	conv, _ := cc["conversation"].(map[string]any)
	if id, _ := conv["id"].(string); id == "" {
		t.Fatal("conversation id is empty")
	}
	if conv["object"] != "realtime.conversation" {
		t.Fatalf("conversation object = %v", conv["object"])
	}
}

func TestSessionUpdateRejectsUnsupportedFormat(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{"type":"session.update","session":{"input_audio_format":"g711_ulaw"}}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{"error"})
	errEvt := fx.writer.first(t, "error")
	details, _ := errEvt["error"].(map[string]any)
	if details["code"] != "unsupported_audio_format" || details["param"] != "input_audio_format" {
		t.Fatalf("error details = %v", details)
	}
	if details["type"] != "invalid_request_error" {
		t.Fatalf("error type = %v, want invalid_request_error", details["type"])
	}
	if fx.state.Config().InputAudioFormat != nil {
		t.Fatal("rejected config was stored")
	}
}

func TestSessionUpdateRejectsServerVAD(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{"type":"session.update","session":{"turn_detection":{"type":"server_vad"}}}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{"error"})
	details, _ := fx.writer.first(t, "error")["error"].(map[string]any)
	if details["code"] != "unsupported_turn_detection" || details["param"] != "turn_detection.type" {
		t.Fatalf("error details = %v", details)
	}
}

func TestSessionUpdateAppliesAndEchoes(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{
		"type": "session.update",
		"session": {
			"modalities": ["text"],
			"instructions": "你是一个简洁的助手",
			"temperature": 0.6,
			"turn_detection": {"type": "semantic_vad", "create_response": false}
		}
	}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{"session.updated"})
	sess, _ := fx.writer.first(t, "session.updated")["session"].(map[string]any)
	mods, _ := sess["modalities"].([]any)
	if len(mods) != 1 || mods[0] != "text" {
		t.Fatalf("modalities = %v, want [text]", mods)
	}
	if sess["instructions"] != "你是一个简洁的助手" {
		t.Fatalf("instructions = %v", sess["instructions"])
	}
	if temp, _ := sess["temperature"].(float64); temp != 0.6 {
		t.Fatalf("temperature = %v, want 0.6", sess["temperature"])
	}
	if sess["model"] != "test-model" || sess["voice"] != "clip-voice" {
		t.Fatalf("model/voice = %v/%v, want resolved providers", sess["model"], sess["voice"])
	}
	td, _ := sess["turn_detection"].(map[string]any)
	if td["type"] != "semantic_vad" {
		t.Fatalf("turn_detection = %v", td)
	}

	if fx.state.Config().HasAudioModality() {
		t.Fatal("stored config kept the audio modality")
	}
	if fx.state.Config().CreateResponse() {
		t.Fatal("stored config kept create_response on")
	}
}

func TestAppendAccumulatesDecodedAudio(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	pcm := make([]byte, 4800)
	raw := fmt.Sprintf(`{"type":"input_audio_buffer.append","audio":%q}`, base64.StdEncoding.EncodeToString(pcm))
	fx.handleRaw(t, raw)
	fx.handleRaw(t, raw)
	drain(t, fx.emit)

	if got := fx.state.BufferedBytes(); got != 9600 {
		t.Fatalf("BufferedBytes() = %d, want 9600", got)
	}
	// Appends are silent.
	if n := len(fx.writer.snapshot()); n != 0 {
		t.Fatalf("emitted %d events, want 0", n)
	}
}

func TestAppendRejectsInvalidBase64(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	err := fx.handler.HandleRaw(context.Background(), []byte(`{"type":"input_audio_buffer.append","audio":"@@not-base64@@"}`))
	if err == nil {
		t.Fatal("HandleRaw() error = nil, want decode failure")
	}
	if !strings.Contains(err.Error(), "decode appended audio") {
		t.Fatalf("error = %v, want decode appended audio", err)
	}
	if got := fx.state.BufferedBytes(); got != 0 {
		t.Fatalf("BufferedBytes() = %d, want 0", got)
	}
}

func TestClearEmptiesBufferAndAcks(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})
	fx.state.AppendAudio(make([]byte, 1024))

	fx.handleRaw(t, `{"type":"input_audio_buffer.clear"}`)
	drain(t, fx.emit)

	if got := fx.state.BufferedBytes(); got != 0 {
		t.Fatalf("BufferedBytes() = %d, want 0", got)
	}
	assertTypes(t, fx.writer.types(), []string{"input_audio_buffer.cleared"})
}

func TestCommitViaHandlerRunsFullTurn(t *testing.T) {
	asr := asrServer(t, nil, "你好")
	defer asr.Close()
	chat := sseChatServer(t, "我在")
	defer chat.Close()
	fx := newHandlerFixture(t, chat.URL, asr.URL, wavSynth{rate: 16000, samples: 100})

	pcm := make([]byte, 4800)
	fx.handleRaw(t, fmt.Sprintf(`{"type":"input_audio_buffer.append","audio":%q}`, base64.StdEncoding.EncodeToString(pcm)))
	fx.handleRaw(t, `{"type":"input_audio_buffer.commit"}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{
		"input_audio_buffer.committed",
		"conversation.item.created",
		"conversation.item.input_audio_transcription.completed",
		"response.created",
		"response.output_item.added",
		"response.content_part.added",
		"response.text.delta",
		"response.text.done",
		"response.content_part.done",
		"response.output_item.done",
		"response.done",
	})
	if got := fx.writer.first(t, "response.text.done")["text"]; got != "我在" {
		t.Fatalf("text.done = %v, want 我在", got)
	}
	if got := fx.state.BufferedBytes(); got != 0 {
		t.Fatalf("BufferedBytes() = %d after commit, want 0", got)
	}
}

func TestCommitWithEmptyBufferStaysSilent(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{"type":"input_audio_buffer.commit"}`)
	drain(t, fx.emit)

	if n := len(fx.writer.snapshot()); n != 0 {
		t.Fatalf("emitted %d events, want 0: %v", n, fx.writer.types())
	}
}

func TestItemCreateEchoesWithPreviousItemID(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{
		"type": "conversation.item.create",
		"previous_item_id": "item-7",
		"item": {
			"id": "item-8",
			"type": "message",
			"role": "user",
			"content": [{"type": "input_text", "text": "记住这个约定"}]
		}
	}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{"conversation.item.created"})
	created := fx.writer.first(t, "conversation.item.created")
	if created["previous_item_id"] != "item-7" {
		t.Fatalf("previous_item_id = %v, want item-7", created["previous_item_id"])
	}
	item, _ := created["item"].(map[string]any)
	if item["id"] != "item-8" {
		t.Fatalf("item id = %v, want item-8", item["id"])
	}

	msgs := fx.state.History().Messages()
	if len(msgs) != 1 || msgs[0].Role != ai.RoleUser || msgs[0].Content != "记住这个约定" {
		t.Fatalf("history = %+v, want one user message", msgs)
	}
}

func TestItemCreateFunctionCallPair(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{
		"type": "conversation.item.create",
		"item": {
			"id": "call-1",
			"type": "function_call",
			"name": "get_weather",
			"arguments": "{\"city\":\"北京\"}"
		}
	}`)
	fx.handleRaw(t, `{
		"type": "conversation.item.create",
		"item": {
			"id": "call-1",
			"type": "function_call_output",
			"output": "{\"temp\":\"26\"}"
		}
	}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{
		"conversation.item.created",
		"conversation.item.created",
	})

	msgs := fx.state.History().Messages()
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != ai.RoleAssistant || len(msgs[0].ToolCalls) != 1 {
		t.Fatalf("tool call message = %+v", msgs[0])
	}
	call := msgs[0].ToolCalls[0]
	if call.ID != "call-1" || call.Function.Name != "get_weather" {
		t.Fatalf("tool call = %+v", call)
	}
	if msgs[1].Role != ai.RoleTool || msgs[1].ToolCallID != "call-1" || msgs[1].Content != `{"temp":"26"}` {
		t.Fatalf("tool output message = %+v", msgs[1])
	}
}

func TestItemCreateUnknownShapeStillEchoes(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{
		"type": "conversation.item.create",
		"item": {"id": "x-1", "type": "message", "role": "narrator",
			"content": [{"type": "input_text", "text": "旁白"}]}
	}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{"conversation.item.created"})
	if got := len(fx.state.History().Messages()); got != 0 {
		t.Fatalf("history length = %d, want 0 for unknown role", got)
	}
}

func TestResponseCreateWhileGeneratingErrors(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})
	fx.state.SetGenerating(true)

	fx.handleRaw(t, `{"type":"response.create"}`)
	drain(t, fx.emit)

	assertTypes(t, fx.writer.types(), []string{"error"})
	details, _ := fx.writer.first(t, "error")["error"].(map[string]any)
	if details["code"] != "response_in_progress" {
		t.Fatalf("error code = %v, want response_in_progress", details["code"])
	}
}

func TestResponseCreateRunsTurn(t *testing.T) {
	chat := sseChatServer(t, "好的")
	defer chat.Close()
	fx := newHandlerFixture(t, chat.URL, "", wavSynth{rate: 16000, samples: 100})
	fx.state.History().AddUserMessage("说好的")

	fx.handleRaw(t, `{"type":"response.create"}`)
	drain(t, fx.emit)

	if n := len(fx.writer.byType("response.done")); n != 1 {
		t.Fatalf("response.done count = %d, want 1: %v", n, fx.writer.types())
	}
}

func TestResponseCancelAcksInterrupted(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})
	fx.state.SetGenerating(true)

	fx.handleRaw(t, `{"type":"response.cancel"}`)
	drain(t, fx.emit)

	if fx.state.Generating() {
		t.Fatal("Generating() = true after cancel")
	}
	assertTypes(t, fx.writer.types(), []string{"conversation.interrupted"})
}

func TestHandleRawUnknownTypeIgnored(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	fx.handleRaw(t, `{"type":"wizardry.cast","power":9}`)
	drain(t, fx.emit)

	if n := len(fx.writer.snapshot()); n != 0 {
		t.Fatalf("emitted %d events, want 0", n)
	}
}

func TestHandleRawMalformedJSON(t *testing.T) {
	fx := newHandlerFixture(t, "", "", wavSynth{rate: 16000, samples: 100})

	if err := fx.handler.HandleRaw(context.Background(), []byte(`{"type":`)); err == nil {
		t.Fatal("HandleRaw() error = nil, want parse failure")
	}
	drain(t, fx.emit)
	if n := len(fx.writer.snapshot()); n != 0 {
		t.Fatalf("emitted %d events, want 0", n)
	}
}
