package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ASRConfig configures the transcription client.
type ASRConfig struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Prompt   string
	Timeout  time.Duration
}

// ASRClient posts WAV clips to a whisper-style transcription endpoint.
type ASRClient struct {
	cfg    ASRConfig
	client *http.Client
}

func NewASRClient(cfg ASRConfig) *ASRClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ASRClient{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// Transcribe sends one WAV clip and returns the recognized segments. A
// clip with no recognizable speech yields an empty slice.
func (c *ASRClient) Transcribe(ctx context.Context, wav []byte) ([]string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if c.cfg.Model != "" {
		_ = mw.WriteField("model", c.cfg.Model)
	}
	if c.cfg.Language != "" {
		_ = mw.WriteField("language", c.cfg.Language)
	}
	if c.cfg.Prompt != "" {
		_ = mw.WriteField("prompt", c.cfg.Prompt)
	}
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("create asr request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send asr request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read asr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asr HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Text     string `json:"text"`
		Segments []struct {
			Text string `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode asr response: %w", err)
	}

	if len(out.Segments) > 0 {
		segments := make([]string, 0, len(out.Segments))
		for _, seg := range out.Segments {
			if text := strings.TrimSpace(seg.Text); text != "" {
				segments = append(segments, text)
			}
		}
		return segments, nil
	}
	if text := strings.TrimSpace(out.Text); text != "" {
		return []string{text}, nil
	}
	return nil, nil
}
