package ai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ChunkKind tags one unit pulled off a completion stream.
type ChunkKind int

const (
	// ChunkText carries a text delta.
	ChunkText ChunkKind = iota
	// ChunkFunctions carries tool call deltas.
	ChunkFunctions
	// ChunkStop marks the end of the stream.
	ChunkStop
)

// StreamChunk is one streamed completion increment.
type StreamChunk struct {
	Kind  ChunkKind
	Text  string
	Calls []ToolCall
}

// ChatStream reads server-sent completion chunks lazily. It is not safe
// for concurrent use.
type ChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newChatStream(body io.ReadCloser) *ChatStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ChatStream{body: body, scanner: scanner}
}

type streamDelta struct {
	Content   string `json:"content"`
	ToolCalls []struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

type streamChunkPayload struct {
	Choices []struct {
		Delta        streamDelta `json:"delta"`
		FinishReason *string     `json:"finish_reason"`
	} `json:"choices"`
}

// Next returns the next chunk. After a ChunkStop or an error the stream is
// closed and every later call reports ChunkStop.
func (s *ChatStream) Next() (StreamChunk, error) {
	if s.done {
		return StreamChunk{Kind: ChunkStop}, nil
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "" {
			continue
		}
		if line == "[DONE]" {
			return s.stop(), nil
		}

		var payload streamChunkPayload
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			continue
		}
		if len(payload.Choices) == 0 {
			continue
		}
		choice := payload.Choices[0]
		if len(choice.Delta.ToolCalls) > 0 {
			calls := make([]ToolCall, 0, len(choice.Delta.ToolCalls))
			for _, tc := range choice.Delta.ToolCalls {
				calls = append(calls, ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
					Function: FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			return StreamChunk{Kind: ChunkFunctions, Calls: calls}, nil
		}
		if choice.Delta.Content != "" {
			return StreamChunk{Kind: ChunkText, Text: choice.Delta.Content}, nil
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			return s.stop(), nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.stop()
		return StreamChunk{}, fmt.Errorf("read chat stream: %w", err)
	}
	return s.stop(), nil
}

func (s *ChatStream) stop() StreamChunk {
	if !s.done {
		s.done = true
		_ = s.body.Close()
	}
	return StreamChunk{Kind: ChunkStop}
}

// Close releases the underlying response body. Safe to call more than once.
func (s *ChatStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}
