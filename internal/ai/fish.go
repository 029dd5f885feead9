package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const defaultFishURL = "https://api.fish.audio/v1/tts"

// FishConfig configures the fish.audio speech endpoint.
type FishConfig struct {
	URL         string
	APIKey      string
	ReferenceID string
	// Model selects the fish.audio TTS model via request header.
	Model   string
	Speed   float64
	Volume  float64
	Timeout time.Duration
}

type fishProsody struct {
	Speed  float64 `msgpack:"speed,omitempty"`
	Volume float64 `msgpack:"volume,omitempty"`
}

type fishRequest struct {
	Text        string       `msgpack:"text"`
	Format      string       `msgpack:"format,omitempty"`
	ReferenceID string       `msgpack:"reference_id,omitempty"`
	Normalize   bool         `msgpack:"normalize"`
	Latency     string       `msgpack:"latency,omitempty"`
	Prosody     *fishProsody `msgpack:"prosody,omitempty"`
}

// FishSynthesizer returns complete WAV clips from fish.audio. Requests are
// msgpack-encoded per the fish.audio TTS API.
type FishSynthesizer struct {
	cfg    FishConfig
	client *http.Client
}

func NewFishSynthesizer(cfg FishConfig) *FishSynthesizer {
	if cfg.URL == "" {
		cfg.URL = defaultFishURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &FishSynthesizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *FishSynthesizer) Voice() string { return s.cfg.ReferenceID }

func (s *FishSynthesizer) Speak(ctx context.Context, text string) (Speech, error) {
	reqBody := fishRequest{
		Text:        text,
		Format:      "wav",
		ReferenceID: s.cfg.ReferenceID,
		Normalize:   true,
		Latency:     "normal",
	}
	if s.cfg.Speed != 0 || s.cfg.Volume != 0 {
		reqBody.Prosody = &fishProsody{Speed: s.cfg.Speed, Volume: s.cfg.Volume}
	}
	payload, err := msgpack.Marshal(reqBody)
	if err != nil {
		return Speech{}, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return Speech{}, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/msgpack")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	if s.cfg.Model != "" {
		req.Header.Set("model", s.cfg.Model)
	}

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
