package app

import (
	"context"
	"fmt"

	"github.com/saymain/echokit-server/internal/ai"
	"github.com/saymain/echokit-server/internal/config"
	"github.com/saymain/echokit-server/internal/httpapi"
	"github.com/saymain/echokit-server/internal/observability"
	"github.com/saymain/echokit-server/internal/realtime"
	"github.com/saymain/echokit-server/internal/registry"
	"github.com/saymain/echokit-server/internal/transcript"
)

type BuildResult struct {
	Config      *config.Config
	API         *httpapi.Server
	Gateway     *realtime.Gateway
	Sessions    *registry.Registry
	Transcripts transcript.Store
	Metrics     *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires the process: metrics, transcript store, resolved providers,
// session registry, realtime gateway and the HTTP API on top.
func Build(ctx context.Context, cfg *config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	transcripts, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	tts, err := buildSynthesizer(cfg.TTS)
	if err != nil {
		_ = transcripts.Close()
		return nil, err
	}

	sessions := registry.New(cfg.Server.SessionTTL.Duration)
	sessions.SetEvictHook(func(registry.Info) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	gateway := &realtime.Gateway{
		Chat: ai.ChatConfig{
			URL:           cfg.LLM.ChatURL,
			APIKey:        cfg.LLM.APIKey,
			Model:         cfg.LLM.Model,
			SystemPrompts: cfg.LLM.SystemPrompts,
			History:       cfg.LLM.History,
			Timeout:       cfg.LLM.Timeout.Duration,
		},
		ASR: ai.NewASRClient(ai.ASRConfig{
			URL:      cfg.ASR.URL,
			APIKey:   cfg.ASR.APIKey,
			Model:    cfg.ASR.Model,
			Language: cfg.ASR.Language,
			Prompt:   cfg.ASR.Prompt,
			Timeout:  cfg.ASR.Timeout.Duration,
		}),
		VAD:         ai.NewVADClient(cfg.VAD.URL, cfg.VAD.Timeout.Duration),
		TTS:         tts,
		Metrics:     metrics,
		Transcripts: transcripts,
		Sessions:    sessions,
	}

	api := httpapi.New(cfg, gateway, sessions, transcripts, metrics)

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Gateway:     gateway,
		Sessions:    sessions,
		Transcripts: transcripts,
		Metrics:     metrics,
		Cleanup:     transcripts.Close,
	}, nil
}

func buildSynthesizer(cfg config.TTSConfig) (ai.Synthesizer, error) {
	switch cfg.Provider {
	case config.TTSStable:
		return ai.NewGSVSynthesizer(ai.GSVConfig{
			URL:        cfg.GSV.URL,
			Speaker:    cfg.GSV.Speaker,
			SampleRate: cfg.GSV.SampleRate,
			Timeout:    cfg.GSV.Timeout.Duration,
		}), nil
	case config.TTSStreamGSV:
		// Streamed PCM is forwarded unresampled, so the endpoint must
		// render at the output rate.
		return ai.NewGSVStreamSynthesizer(ai.GSVConfig{
			URL:        cfg.GSV.URL,
			Speaker:    cfg.GSV.Speaker,
			SampleRate: realtime.OutputSampleRate,
			Timeout:    cfg.GSV.Timeout.Duration,
		}), nil
	case config.TTSFish:
		return ai.NewFishSynthesizer(ai.FishConfig{
			URL:         cfg.Fish.URL,
			APIKey:      cfg.Fish.APIKey,
			ReferenceID: cfg.Fish.ReferenceID,
			Model:       cfg.Fish.Model,
			Speed:       cfg.Fish.Speed,
			Volume:      cfg.Fish.Volume,
			Timeout:     cfg.Fish.Timeout.Duration,
		}), nil
	case config.TTSGroq:
		return ai.NewGroqSynthesizer(ai.GroqConfig{
			URL:     cfg.Groq.URL,
			APIKey:  cfg.Groq.APIKey,
			Model:   cfg.Groq.Model,
			Voice:   cfg.Groq.Voice,
			Timeout: cfg.Groq.Timeout.Duration,
		}), nil
	default:
		return nil, fmt.Errorf("invalid tts provider %q (expected stable, stream_gsv, fish or groq)", cfg.Provider)
	}
}
