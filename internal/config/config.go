// Package config provides the YAML configuration schema and loader for the
// echokit realtime server.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TTSProvider selects the speech synthesis backend.
type TTSProvider string

const (
	// TTSStable posts to a GPT-SoVITS endpoint and plays complete WAV clips.
	TTSStable TTSProvider = "stable"

	// TTSStreamGSV streams raw PCM from a GPT-SoVITS endpoint as it renders.
	TTSStreamGSV TTSProvider = "stream_gsv"

	TTSFish TTSProvider = "fish"
	TTSGroq TTSProvider = "groq"
)

// IsValid reports whether p is a recognised TTS provider.
func (p TTSProvider) IsValid() bool {
	switch p {
	case TTSStable, TTSStreamGSV, TTSFish, TTSGroq:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML scalars like "30s" parse directly.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return d.Duration.String(), nil }

// Config is the root configuration, typically loaded from a YAML file via
// [Load] with environment overrides applied on top.
type Config struct {
	Server      ServerConfig `yaml:"server"`
	LLM         LLMConfig    `yaml:"llm"`
	ASR         ASRConfig    `yaml:"asr"`
	VAD         VADConfig    `yaml:"vad"`
	TTS         TTSConfig    `yaml:"tts"`
	DatabaseURL string       `yaml:"database_url"`
}

// ServerConfig holds network and lifecycle settings.
type ServerConfig struct {
	// BindAddr is the TCP address the server listens on (e.g., ":8080").
	BindAddr string `yaml:"bind_addr"`

	MetricsNamespace string `yaml:"metrics_namespace"`

	// AllowAnyOrigin disables the websocket Origin check. Development only.
	AllowAnyOrigin bool `yaml:"allow_any_origin"`

	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// SessionTTL evicts registry entries idle longer than this.
	SessionTTL Duration `yaml:"session_ttl"`
}

// LLMConfig points at an OpenAI-compatible streaming chat endpoint.
type LLMConfig struct {
	ChatURL       string   `yaml:"chat_url"`
	APIKey        string   `yaml:"api_key"`
	Model         string   `yaml:"model"`
	SystemPrompts []string `yaml:"system_prompts"`

	// History caps retained non-system messages; 0 keeps everything.
	History int      `yaml:"history"`
	Timeout Duration `yaml:"timeout"`
}

// ASRConfig points at a whisper-server compatible transcription endpoint.
type ASRConfig struct {
	URL      string   `yaml:"url"`
	APIKey   string   `yaml:"api_key"`
	Model    string   `yaml:"model"`
	Language string   `yaml:"language"`
	Prompt   string   `yaml:"prompt"`
	Timeout  Duration `yaml:"timeout"`
}

// VADConfig points at a voice-activity endpoint. An empty URL disables the
// silence gate and every committed buffer is transcribed.
type VADConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// TTSConfig selects and configures the synthesis backend. Only the block
// matching Provider is used.
type TTSConfig struct {
	Provider TTSProvider `yaml:"provider"`
	GSV      GSVConfig   `yaml:"gsv"`
	Fish     FishConfig  `yaml:"fish"`
	Groq     GroqConfig  `yaml:"groq"`
}

type GSVConfig struct {
	URL        string   `yaml:"url"`
	Speaker    string   `yaml:"speaker"`
	SampleRate int      `yaml:"sample_rate"`
	Timeout    Duration `yaml:"timeout"`
}

type FishConfig struct {
	URL         string   `yaml:"url"`
	APIKey      string   `yaml:"api_key"`
	ReferenceID string   `yaml:"reference_id"`
	Model       string   `yaml:"model"`
	Speed       float64  `yaml:"speed"`
	Volume      float64  `yaml:"volume"`
	Timeout     Duration `yaml:"timeout"`
}

type GroqConfig struct {
	URL     string   `yaml:"url"`
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	Voice   string   `yaml:"voice"`
	Timeout Duration `yaml:"timeout"`
}

// Default returns the configuration used when the file leaves a field unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddr:         ":8080",
			MetricsNamespace: "echokit",
			ShutdownTimeout:  Duration{15 * time.Second},
			SessionTTL:       Duration{10 * time.Minute},
		},
		LLM: LLMConfig{
			Model:   "qwen-plus",
			History: 20,
			Timeout: Duration{60 * time.Second},
		},
		ASR: ASRConfig{
			Timeout: Duration{30 * time.Second},
		},
		VAD: VADConfig{
			Timeout: Duration{10 * time.Second},
		},
		TTS: TTSConfig{
			Provider: TTSStable,
			GSV:      GSVConfig{SampleRate: 32000, Timeout: Duration{60 * time.Second}},
			Fish:     FishConfig{Speed: 1, Timeout: Duration{60 * time.Second}},
			Groq:     GroqConfig{Model: "playai-tts", Timeout: Duration{60 * time.Second}},
		},
	}
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path skips the file and loads defaults
// plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeYAML(cfg, f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and validates. Useful in tests with string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(cfg, r); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv overlays operational settings and credentials from the
// environment so deployments never need secrets in the config file.
func applyEnv(cfg *Config) error {
	cfg.Server.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.Server.BindAddr)
	cfg.Server.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.Server.MetricsNamespace)

	var err error
	cfg.Server.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.Server.AllowAnyOrigin)
	if err != nil {
		return err
	}
	cfg.Server.ShutdownTimeout.Duration, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout.Duration)
	if err != nil {
		return err
	}
	cfg.Server.SessionTTL.Duration, err = durationFromEnv("APP_SESSION_TTL", cfg.Server.SessionTTL.Duration)
	if err != nil {
		return err
	}
	cfg.LLM.History, err = intFromEnv("LLM_HISTORY", cfg.LLM.History)
	if err != nil {
		return err
	}

	cfg.LLM.APIKey = envOrDefault("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.ASR.APIKey = envOrDefault("ASR_API_KEY", cfg.ASR.APIKey)
	cfg.TTS.Fish.APIKey = envOrDefault("FISH_API_KEY", cfg.TTS.Fish.APIKey)
	cfg.TTS.Groq.APIKey = envOrDefault("GROQ_API_KEY", cfg.TTS.Groq.APIKey)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	return nil
}

// Validate checks that cfg names everything the pipeline needs to run.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Server.BindAddr) == "" {
		errs = append(errs, fmt.Errorf("server.bind_addr is required"))
	}
	if cfg.Server.SessionTTL.Duration < 5*time.Second {
		errs = append(errs, fmt.Errorf("server.session_ttl must be at least 5s"))
	}
	if strings.TrimSpace(cfg.LLM.ChatURL) == "" {
		errs = append(errs, fmt.Errorf("llm.chat_url is required"))
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}
	if cfg.LLM.History < 0 {
		errs = append(errs, fmt.Errorf("llm.history must be >= 0"))
	}
	if strings.TrimSpace(cfg.ASR.URL) == "" {
		errs = append(errs, fmt.Errorf("asr.url is required"))
	}

	if !cfg.TTS.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("tts.provider %q is invalid; valid values: stable, stream_gsv, fish, groq", cfg.TTS.Provider))
	} else {
		switch cfg.TTS.Provider {
		case TTSStable, TTSStreamGSV:
			if strings.TrimSpace(cfg.TTS.GSV.URL) == "" {
				errs = append(errs, fmt.Errorf("tts.gsv.url is required for provider %q", cfg.TTS.Provider))
			}
		case TTSFish:
			if strings.TrimSpace(cfg.TTS.Fish.APIKey) == "" {
				errs = append(errs, fmt.Errorf("tts.fish.api_key is required for provider fish"))
			}
		case TTSGroq:
			if strings.TrimSpace(cfg.TTS.Groq.APIKey) == "" {
				errs = append(errs, fmt.Errorf("tts.groq.api_key is required for provider groq"))
			}
		}
	}

	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
