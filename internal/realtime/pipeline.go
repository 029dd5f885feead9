package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saymain/echokit-server/internal/ai"
	"github.com/saymain/echokit-server/internal/audio"
	"github.com/saymain/echokit-server/internal/observability"
	"github.com/saymain/echokit-server/internal/protocol"
	"github.com/saymain/echokit-server/internal/registry"
	"github.com/saymain/echokit-server/internal/transcript"
)

// Pipeline runs the commit and response turns for one connection. It runs
// on the receiver goroutine, so a turn blocks further reads until it
// finishes; only the emitter crosses goroutines.
type Pipeline struct {
	state       *State
	emitter     *Emitter
	asr         *ai.ASRClient
	vad         *ai.VADClient
	tts         ai.Synthesizer
	metrics     *observability.Metrics
	transcripts transcript.Store
	sessions    *registry.Registry

	turnStart time.Time
	audioSent bool
}

func NewPipeline(state *State, emitter *Emitter, asr *ai.ASRClient, vad *ai.VADClient, tts ai.Synthesizer, metrics *observability.Metrics, transcripts transcript.Store, sessions *registry.Registry) *Pipeline {
	return &Pipeline{
		state:       state,
		emitter:     emitter,
		asr:         asr,
		vad:         vad,
		tts:         tts,
		metrics:     metrics,
		transcripts: transcripts,
		sessions:    sessions,
	}
}

// CommitAudio turns the buffered input audio into a transcribed user item.
// It reports whether the caller should start a response turn. An empty
// buffer is a silent no-op; a VAD silence verdict acknowledges the commit
// with an empty transcript and suppresses the response.
func (p *Pipeline) CommitAudio(ctx context.Context) (bool, error) {
	pcm := p.state.TakeAudio()
	if len(pcm) == 0 {
		return false, nil
	}
	start := time.Now()

	wav, err := audio.EncodeWAVPCM16LE(pcm, InputSampleRate)
	if err != nil {
		return false, fmt.Errorf("wrap committed audio: %w", err)
	}

	itemID := uuid.NewString()
	p.emit(protocol.InputAudioBufferCommitted{
		Type:    protocol.TypeInputAudioBufferCommitted,
		EventID: uuid.NewString(),
		ItemID:  itemID,
	})

	if p.vad != nil && p.vad.Enabled() {
		spans, err := p.vad.Detect(ctx, wav)
		if err != nil {
			p.metrics.ProviderErrors.WithLabelValues("vad", "detect_failed").Inc()
			return false, fmt.Errorf("vad detect: %w", err)
		}
		p.metrics.ObserveTurnStage("commit_to_vad", time.Since(start))
		if len(spans) == 0 {
			p.metrics.ObserveTurnIndicator("vad_silence")
			p.emit(protocol.InputAudioTranscriptionCompleted{
				Type:         protocol.TypeInputAudioTranscriptionCompleted,
				EventID:      uuid.NewString(),
				ItemID:       itemID,
				ContentIndex: 0,
				Transcript:   "",
			})
			return false, nil
		}
	}

	segments, err := p.asr.Transcribe(ctx, wav)
	if err != nil {
		p.metrics.ProviderErrors.WithLabelValues("asr", "transcribe_failed").Inc()
		return false, fmt.Errorf("transcribe committed audio: %w", err)
	}
	text := strings.Join(segments, "\n")
	p.metrics.ObserveTurnStage("commit_to_transcript", time.Since(start))

	userItem := protocol.ConversationItem{
		ID:     itemID,
		Object: protocol.ObjectItem,
		Type:   protocol.ItemTypeMessage,
		Status: "completed",
		Role:   protocol.RoleUser,
		Content: []protocol.ContentPart{
			protocol.InputAudioPart(base64.StdEncoding.EncodeToString(pcm), text),
		},
	}
	p.state.History().AddUserMessage(text)
	p.emit(protocol.ConversationItemCreated{
		Type:    protocol.TypeConversationItemCreated,
		EventID: uuid.NewString(),
		Item:    userItem,
	})
	p.emit(protocol.InputAudioTranscriptionCompleted{
		Type:         protocol.TypeInputAudioTranscriptionCompleted,
		EventID:      uuid.NewString(),
		ItemID:       itemID,
		ContentIndex: 0,
		Transcript:   text,
	})
	p.archive("user", text)

	return p.state.Config().CreateResponse(), nil
}

// GenerateResponse streams one assistant turn: LLM deltas as text events,
// each delta synthesized and framed as audio deltas when the audio modality
// is on, then the full done ladder. Provider failures degrade to
// StandardErrorResponse so the ladder always completes.
func (p *Pipeline) GenerateResponse(ctx context.Context) error {
	if role, ok := p.state.LastRole(); ok && role == ai.RoleAssistant {
		return nil
	}
	if p.state.Generating() {
		return nil
	}
	p.state.SetGenerating(true)
	p.turnStart = time.Now()
	p.audioSent = false

	withAudio := p.state.Config().HasAudioModality()
	responseID := uuid.NewString()
	itemID := uuid.NewString()

	p.emit(protocol.ResponseCreated{
		Type:    protocol.TypeResponseCreated,
		EventID: uuid.NewString(),
		Response: protocol.Response{
			ID:     responseID,
			Object: protocol.ObjectResponse,
			Status: protocol.ResponseStatusInProgress,
			Output: []protocol.ConversationItem{},
		},
	})
	p.emit(protocol.ResponseOutputItemAdded{
		Type:        protocol.TypeResponseOutputItemAdded,
		EventID:     uuid.NewString(),
		ResponseID:  responseID,
		OutputIndex: 0,
		Item: protocol.ConversationItem{
			ID:      itemID,
			Object:  protocol.ObjectItem,
			Type:    protocol.ItemTypeMessage,
			Status:  "in_progress",
			Role:    protocol.RoleAssistant,
			Content: []protocol.ContentPart{protocol.TextPart("")},
		},
	})
	p.emit(protocol.ResponseContentPartAdded{
		Type:         protocol.TypeResponseContentPartAdded,
		EventID:      uuid.NewString(),
		ResponseID:   responseID,
		ItemID:       itemID,
		OutputIndex:  0,
		ContentIndex: 0,
		Part:         protocol.TextPart(""),
	})
	if withAudio {
		p.emit(protocol.ResponseContentPartAdded{
			Type:         protocol.TypeResponseContentPartAdded,
			EventID:      uuid.NewString(),
			ResponseID:   responseID,
			ItemID:       itemID,
			OutputIndex:  0,
			ContentIndex: 1,
			Part:         protocol.AudioPart(),
		})
	}

	var reply strings.Builder
	hasValid := false

	llmStart := time.Now()
	stream, err := p.state.History().Complete(ctx)
	if err != nil {
		log.Printf("[turn] session %s: chat request: %v", p.state.ID(), err)
		p.metrics.ProviderErrors.WithLabelValues("llm", "request_failed").Inc()
		p.metrics.ObserveTurnIndicator("llm_fallback")
		reply.WriteString(StandardErrorResponse)
		hasValid = true
	} else {
		firstChunk := true
		for {
			chunk, err := stream.Next()
			if err != nil {
				log.Printf("[turn] session %s: chat stream: %v", p.state.ID(), err)
				p.metrics.ProviderErrors.WithLabelValues("llm", "stream_failed").Inc()
				p.metrics.ObserveTurnIndicator("llm_fallback")
				reply.Reset()
				reply.WriteString(StandardErrorResponse)
				hasValid = true
				break
			}
			if chunk.Kind == ai.ChunkStop {
				break
			}
			if chunk.Kind == ai.ChunkFunctions {
				continue
			}
			if firstChunk {
				p.metrics.ObserveTurnStage("llm_first_chunk", time.Since(llmStart))
				firstChunk = false
			}
			if trimmed := strings.TrimSpace(chunk.Text); trimmed != "" && trimmed != "()" && trimmed != "[]" {
				hasValid = true
			}
			reply.WriteString(chunk.Text)
			// Text delta item ids are minted per event; clients correlate
			// on response_id and the indexes.
			p.emit(protocol.ResponseTextDelta{
				Type:         protocol.TypeResponseTextDelta,
				EventID:      uuid.NewString(),
				ResponseID:   responseID,
				ItemID:       uuid.NewString(),
				OutputIndex:  0,
				ContentIndex: 0,
				Delta:        chunk.Text,
			})
			if withAudio {
				if err := p.speak(ctx, responseID, itemID, chunk.Text); err != nil {
					log.Printf("[turn] session %s: tts: %v", p.state.ID(), err)
					p.metrics.ProviderErrors.WithLabelValues("tts", "synthesize_failed").Inc()
				}
			}
		}
		_ = stream.Close()
		p.metrics.ObserveTurnStage("llm_total", time.Since(llmStart))
	}

	finalText := reply.String()
	if !hasValid || strings.TrimSpace(finalText) == "" {
		log.Printf("[turn] session %s: empty assistant reply, using fallback", p.state.ID())
		p.metrics.ObserveTurnIndicator("llm_fallback")
		finalText = StandardErrorResponse
	}

	p.emit(protocol.ResponseTextDone{
		Type:         protocol.TypeResponseTextDone,
		EventID:      uuid.NewString(),
		ResponseID:   responseID,
		ItemID:       uuid.NewString(),
		OutputIndex:  0,
		ContentIndex: 0,
		Text:         finalText,
	})
	p.emit(protocol.ResponseContentPartDone{
		Type:         protocol.TypeResponseContentPartDone,
		EventID:      uuid.NewString(),
		ResponseID:   responseID,
		ItemID:       itemID,
		OutputIndex:  0,
		ContentIndex: 0,
		Part:         protocol.TextPart(finalText),
	})
	content := []protocol.ContentPart{protocol.TextPart(finalText)}
	if withAudio {
		p.emit(protocol.ResponseAudioDone{
			Type:         protocol.TypeResponseAudioDone,
			EventID:      uuid.NewString(),
			ResponseID:   responseID,
			ItemID:       itemID,
			OutputIndex:  0,
			ContentIndex: 1,
		})
		p.emit(protocol.ResponseContentPartDone{
			Type:         protocol.TypeResponseContentPartDone,
			EventID:      uuid.NewString(),
			ResponseID:   responseID,
			ItemID:       itemID,
			OutputIndex:  0,
			ContentIndex: 1,
			Part:         protocol.AudioTranscriptPart(finalText),
		})
		content = append(content, protocol.AudioTranscriptPart(finalText))
	}

	p.state.History().AddAssistantMessage(finalText)
	p.state.SetGenerating(false)

	p.emit(protocol.ResponseOutputItemDone{
		Type:        protocol.TypeResponseOutputItemDone,
		EventID:     uuid.NewString(),
		ResponseID:  responseID,
		OutputIndex: 0,
		Item: protocol.ConversationItem{
			ID:      itemID,
			Object:  protocol.ObjectItem,
			Type:    protocol.ItemTypeMessage,
			Status:  "completed",
			Role:    protocol.RoleAssistant,
			Content: content,
		},
	})
	p.emit(protocol.ResponseDone{
		Type:    protocol.TypeResponseDone,
		EventID: uuid.NewString(),
		Response: protocol.Response{
			ID:     responseID,
			Object: protocol.ObjectResponse,
			Status: protocol.ResponseStatusCompleted,
			Output: []protocol.ConversationItem{},
		},
	})

	p.metrics.ObserveTurnStage("turn_total", time.Since(p.turnStart))
	p.archive("assistant", finalText)
	if p.sessions != nil {
		p.sessions.MarkTurn(p.state.ID())
	}
	return nil
}

// speak synthesizes one text chunk and frames it into audio deltas. Blob
// responses are decoded and resampled to the output rate; streamed bodies
// are already at the output rate and only need framing.
func (p *Pipeline) speak(ctx context.Context, responseID, itemID, text string) error {
	speech, err := p.tts.Speak(ctx, text)
	if err != nil {
		return err
	}
	if speech.PCM != nil {
		return p.sendPCMStream(responseID, itemID, speech.PCM)
	}
	return p.sendWAVClip(responseID, itemID, speech.WAV)
}

func (p *Pipeline) sendWAVClip(responseID, itemID string, wav []byte) error {
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return fmt.Errorf("decode synthesized clip: %w", err)
	}
	samples := clip.Samples
	if clip.SampleRate != OutputSampleRate {
		samples = audio.ResampleLinear(samples, clip.Channels, clip.SampleRate, OutputSampleRate)
	}
	pcm := audio.PCM16FromFloat32(samples)
	for off := 0; off < len(pcm); off += wavFrameBytes {
		end := off + wavFrameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		p.sendAudioDelta(responseID, itemID, pcm[off:end])
	}
	return nil
}

func (p *Pipeline) sendPCMStream(responseID, itemID string, body io.ReadCloser) error {
	defer body.Close()
	framer := audio.NewFramer(streamFrameBytes)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range framer.Push(buf[:n]) {
				p.sendAudioDelta(responseID, itemID, frame)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read synthesized stream: %w", err)
		}
	}
	if rest := framer.Flush(); len(rest) > 0 {
		p.sendAudioDelta(responseID, itemID, rest)
	}
	return nil
}

func (p *Pipeline) sendAudioDelta(responseID, itemID string, pcm []byte) {
	if !p.audioSent {
		p.audioSent = true
		p.metrics.ObserveFirstAudioLatency(time.Since(p.turnStart))
		p.metrics.ObserveTurnStage("tts_first_audio", time.Since(p.turnStart))
	}
	p.emit(protocol.ResponseAudioDelta{
		Type:         protocol.TypeResponseAudioDelta,
		EventID:      uuid.NewString(),
		ResponseID:   responseID,
		ItemID:       itemID,
		OutputIndex:  0,
		ContentIndex: 1,
		Delta:        base64.StdEncoding.EncodeToString(pcm),
	})
}

// archive records one finished utterance write-behind. Failures are logged
// and never affect the turn.
func (p *Pipeline) archive(role, content string) {
	if p.transcripts == nil || strings.TrimSpace(content) == "" {
		return
	}
	u := transcript.Utterance{
		ID:        uuid.NewString(),
		SessionID: p.state.ID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), transcriptSaveTimeout)
		defer cancel()
		if err := p.transcripts.Save(ctx, u); err != nil {
			log.Printf("[turn] session %s: archive %s utterance: %v", u.SessionID, u.Role, err)
		}
	}()
}

func (p *Pipeline) emit(evt any) { _ = p.emitter.Emit(evt) }
