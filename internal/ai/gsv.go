package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GSVConfig configures a GPT-SoVITS speech endpoint.
type GSVConfig struct {
	URL        string
	Speaker    string
	SampleRate int
	Timeout    time.Duration
}

type gsvRequest struct {
	Text       string `json:"text"`
	Speaker    string `json:"speaker,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// GSVSynthesizer returns complete WAV clips from a GPT-SoVITS server.
type GSVSynthesizer struct {
	cfg    GSVConfig
	client *http.Client
}

func NewGSVSynthesizer(cfg GSVConfig) *GSVSynthesizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 32000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GSVSynthesizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *GSVSynthesizer) Voice() string { return s.cfg.Speaker }

func (s *GSVSynthesizer) Speak(ctx context.Context, text string) (Speech, error) {
	resp, err := postGSV(ctx, s.client, s.cfg, text)
	if err != nil {
		return Speech{}, err
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return Speech{}, fmt.Errorf("read tts response: %w", err)
	}
	return Speech{WAV: wav}, nil
}

// GSVStreamSynthesizer returns live raw-PCM bodies from a streaming
// GPT-SoVITS server. The server is expected to emit 16 kHz PCM16LE.
type GSVStreamSynthesizer struct {
	cfg    GSVConfig
	client *http.Client
}

func NewGSVStreamSynthesizer(cfg GSVConfig) *GSVStreamSynthesizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GSVStreamSynthesizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *GSVStreamSynthesizer) Voice() string { return s.cfg.Speaker }

func (s *GSVStreamSynthesizer) Speak(ctx context.Context, text string) (Speech, error) {
	resp, err := postGSV(ctx, s.client, s.cfg, text)
	if err != nil {
		return Speech{}, err
	}
	return Speech{PCM: resp.Body}, nil
}

func postGSV(ctx context.Context, client *http.Client, cfg GSVConfig, text string) (*http.Response, error) {
	payload, err := json.Marshal(gsvRequest{
		Text:       text,
		Speaker:    cfg.Speaker,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("tts HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
