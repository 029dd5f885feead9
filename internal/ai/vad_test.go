package ai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDetectPostsWAVAndParsesSpans(t *testing.T) {
	wav := []byte("RIFFvadclip")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("Content-Type = %q, want audio/wav", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(wav) {
			t.Errorf("body = %q, want %q", body, wav)
		}
		_, _ = io.WriteString(w, `{"timestamps":[{"start":120.5,"end":980},{"start":1200,"end":1500}]}`)
	}))
	defer ts.Close()

	c := NewVADClient(ts.URL, time.Second)
	spans, err := c.Detect(context.Background(), wav)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(spans))
	}
	if spans[0].Start != 120.5 || spans[0].End != 980 {
		t.Fatalf("spans[0] = %+v, want {120.5 980}", spans[0])
	}
}

func TestDetectSilenceYieldsNoSpans(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"timestamps":[]}`)
	}))
	defer ts.Close()

	c := NewVADClient(ts.URL, time.Second)
	spans, err := c.Detect(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("spans = %v, want none", spans)
	}
}

func TestDetectSurfacesHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cannot decode clip", http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	c := NewVADClient(ts.URL, time.Second)
	_, err := c.Detect(context.Background(), []byte("wav"))
	if err == nil {
		t.Fatal("Detect() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "vad HTTP 422") {
		t.Fatalf("Detect() error = %v, want vad HTTP 422", err)
	}
}

func TestVADClientEnabled(t *testing.T) {
	if NewVADClient("", 0).Enabled() {
		t.Fatal("Enabled() = true for empty URL")
	}
	if !NewVADClient("http://127.0.0.1:9000/vad", 0).Enabled() {
		t.Fatal("Enabled() = false for configured URL")
	}
}
