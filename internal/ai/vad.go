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

// SpeechSpan is one detected speech interval, in milliseconds from the
// start of the clip.
type SpeechSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// VADClient posts WAV clips to a voice-activity endpoint. An empty URL
// disables detection and every clip is treated as speech.
type VADClient struct {
	url    string
	client *http.Client
}

func NewVADClient(url string, timeout time.Duration) *VADClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VADClient{url: url, client: &http.Client{Timeout: timeout}}
}

// Enabled reports whether a detection endpoint is configured.
func (c *VADClient) Enabled() bool { return c.url != "" }

// Detect returns the speech intervals found in the WAV clip. No intervals
// means the clip is silence.
func (c *VADClient) Detect(ctx context.Context, wav []byte) ([]SpeechSpan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(wav))
	if err != nil {
		return nil, fmt.Errorf("create vad request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send vad request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read vad response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vad HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Timestamps []SpeechSpan `json:"timestamps"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode vad response: %w", err)
	}
	return out.Timestamps, nil
}
