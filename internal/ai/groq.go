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

const defaultGroqURL = "https://api.groq.com/openai/v1/audio/speech"

// GroqConfig configures the Groq speech endpoint.
type GroqConfig struct {
	URL     string
	APIKey  string
	Model   string
	Voice   string
	Timeout time.Duration
}

type groqRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// GroqSynthesizer returns complete WAV clips from the Groq speech API.
type GroqSynthesizer struct {
	cfg    GroqConfig
	client *http.Client
}

func NewGroqSynthesizer(cfg GroqConfig) *GroqSynthesizer {
	if cfg.URL == "" {
		cfg.URL = defaultGroqURL
	}
	if cfg.Model == "" {
		cfg.Model = "playai-tts"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &GroqSynthesizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *GroqSynthesizer) Voice() string { return s.cfg.Voice }

func (s *GroqSynthesizer) Speak(ctx context.Context, text string) (Speech, error) {
	payload, err := json.Marshal(groqRequest{
		Model:          s.cfg.Model,
		Voice:          s.cfg.Voice,
		Input:          text,
		ResponseFormat: "wav",
	})
	if err != nil {
		return Speech{}, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return Speech{}, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return Speech{}, fmt.Errorf("send tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Speech{}, fmt.Errorf("tts HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return Speech{}, fmt.Errorf("read tts response: %w", err)
	}
	return Speech{WAV: wav}, nil
}
