// Package agent consumes the generation producer: the external agent runtime
// that turns a user message into a stream of text chunks, possibly spanning
// several logical messages within one response.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EventKind discriminates producer events.
type EventKind int

const (
	// EventChunk carries a piece of generated text.
	EventChunk EventKind = iota
	// EventBoundary marks the end of one logical message and the start of
	// the next within the same response.
	EventBoundary
)

// Event is one unit of producer output.
type Event struct {
	Kind EventKind
	Text string
}

// Callback receives producer events in order. Returning an error aborts the
// stream.
type Callback func(Event) error

// Request is one generation turn.
type Request struct {
	SessionID string
	UserID    string
	Message   string
}

// Producer is the generation stream producer consumed by the gateway.
type Producer interface {
	Stream(ctx context.Context, req Request, cb Callback) error
}

// Client talks to an OpenAI-compatible agent runtime.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a producer client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	User     string        `json:"user,omitempty"`
}

type choice struct {
	Index        int          `json:"index"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type streamChunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Stream sends one generation turn and invokes cb for each event, in order.
// A finish_reason "stop" followed by further content marks a message
// boundary: the runtime's loop agent has completed one message and started
// another within the same response.
func (c *Client) Stream(ctx context.Context, req Request, cb Callback) error {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: req.Message}},
		Stream:   true,
		User:     req.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-session-id", req.SessionID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("agent API error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return fmt.Errorf("agent API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	reader := bufio.NewReader(resp.Body)
	sawStop := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		ch := chunk.Choices[0]
		if ch.Delta != nil && ch.Delta.Content != "" {
			if sawStop {
				sawStop = false
				if err := cb(Event{Kind: EventBoundary}); err != nil {
					return err
				}
			}
			if err := cb(Event{Kind: EventChunk, Text: ch.Delta.Content}); err != nil {
				return err
			}
		}
		if ch.FinishReason == "stop" {
			sawStop = true
		}
	}
}
