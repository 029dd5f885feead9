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

// Role tags a chat history record.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is one chat history record in chat-completions shape.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatConfig configures the streaming completions client.
type ChatConfig struct {
	URL           string
	APIKey        string
	Model         string
	SystemPrompts []string
	// History caps retained non-system messages; 0 disables trimming.
	History int
	Timeout time.Duration
}

// ChatSession owns one connection's conversation history and produces
// streaming completions over it. It is confined to the connection's
// receiver goroutine and needs no locking.
type ChatSession struct {
	cfg      ChatConfig
	client   *http.Client
	system   []Message
	messages []Message
}

func NewChatSession(cfg ChatConfig) *ChatSession {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	system := make([]Message, 0, len(cfg.SystemPrompts))
	for _, p := range cfg.SystemPrompts {
		system = append(system, Message{Role: RoleSystem, Content: p})
	}
	return &ChatSession{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		system: system,
	}
}

func (s *ChatSession) AddUserMessage(text string) {
	s.push(Message{Role: RoleUser, Content: text})
}

func (s *ChatSession) AddAssistantMessage(text string) {
	s.push(Message{Role: RoleAssistant, Content: text})
}

// AddToolCall records an assistant turn that invoked a single tool.
func (s *ChatSession) AddToolCall(id, name, arguments string) {
	s.push(Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     "function",
			Function: FunctionCall{Name: name, Arguments: arguments},
		}},
	})
}

// AddToolOutput records a tool result for a previous call.
func (s *ChatSession) AddToolOutput(callID, output string) {
	s.push(Message{Role: RoleTool, Content: output, ToolCallID: callID})
}

// ReplaceLeadSystemPrompt swaps the text of the first configured system
// prompt. A session with no system prompts is left unchanged.
func (s *ChatSession) ReplaceLeadSystemPrompt(text string) {
	if len(s.system) == 0 {
		return
	}
	s.system[0].Content = text
}

// LastRole reports the role of the newest history record, ignoring system
// prompts. ok is false while the history is empty.
func (s *ChatSession) LastRole() (Role, bool) {
	if len(s.messages) == 0 {
		return "", false
	}
	return s.messages[len(s.messages)-1].Role, true
}

// Messages returns a copy of the non-system history.
func (s *ChatSession) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *ChatSession) push(msg Message) {
	s.messages = append(s.messages, msg)
	if s.cfg.History > 0 && len(s.messages) > s.cfg.History {
		trimmed := make([]Message, s.cfg.History)
		copy(trimmed, s.messages[len(s.messages)-s.cfg.History:])
		s.messages = trimmed
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Complete opens a streaming completion over the current history. The
// returned stream is single-reader; the caller must drain or close it.
func (s *ChatSession) Complete(ctx context.Context) (*ChatStream, error) {
	msgs := make([]Message, 0, len(s.system)+len(s.messages))
	msgs = append(msgs, s.system...)
	msgs = append(msgs, s.messages...)

	payload, err := json.Marshal(chatRequest{
		Model:    s.cfg.Model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("chat HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return newChatStream(resp.Body), nil
}
