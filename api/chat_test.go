package api_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/frateto/gateway/agent"
	"github.com/frateto/gateway/api"
	"github.com/frateto/gateway/config"
	"github.com/frateto/gateway/queryguard"
	"github.com/frateto/gateway/ratelimit"
	"github.com/frateto/gateway/session"
	"github.com/frateto/gateway/tests/helpers"
)

// stubProducer replays a fixed event sequence, then returns err.
type stubProducer struct {
	events []agent.Event
	err    error
}

func (s *stubProducer) Stream(ctx context.Context, req agent.Request, cb agent.Callback) error {
	for _, ev := range s.events {
		if err := cb(ev); err != nil {
			return err
		}
	}
	return s.err
}

type handlerOpts struct {
	producer agent.Producer
	registry *session.Registry
	limiter  *ratelimit.Limiter
}

func newTestHandler(t *testing.T, opts handlerOpts) *api.Handler {
	t.Helper()

	cfg := &config.Config{
		MaxSessions:          20,
		SessionTTL:           15 * time.Minute,
		MaxRequestsPerWindow: 10,
		Window:               time.Minute,
		DefaultRowLimit:      100,
		MaxRowLimit:          1000,
	}
	if opts.registry == nil {
		opts.registry = session.New(cfg.MaxSessions, cfg.SessionTTL)
	}
	if opts.limiter == nil {
		opts.limiter = ratelimit.New(cfg.MaxRequestsPerWindow, cfg.Window)
	}
	if opts.producer == nil {
		opts.producer = &stubProducer{}
	}
	guard, err := queryguard.NewGuard(context.Background(), cfg.DefaultRowLimit, cfg.MaxRowLimit)
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}
	return api.NewHandler(cfg, opts.registry, opts.limiter, guard, helpers.NewTestExecutor(t), opts.producer)
}

func postChat(t *testing.T, h *api.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Chat(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestChatValidation(t *testing.T) {
	h := newTestHandler(t, handlerOpts{})

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message":"","user_id":"u1","session_id":"s1"}`},
		{"whitespace message", `{"message":"   \n ","user_id":"u1","session_id":"s1"}`},
		{"missing user", `{"message":"hi","session_id":"s1"}`},
		{"missing session", `{"message":"hi","user_id":"u1"}`},
		{"oversized message", `{"message":"` + strings.Repeat("a", 10001) + `","user_id":"u1","session_id":"s1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatMessageLengthIsRuneCounted(t *testing.T) {
	h := newTestHandler(t, handlerOpts{})

	// 6000 three-byte runes: 18000 bytes, well under the character cap.
	rec := postChat(t, h, `{"message":"`+strings.Repeat("€", 6000)+`","user_id":"u1","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postChat(t, h, `{"message":"`+strings.Repeat("€", 10001)+`","user_id":"u2","session_id":"s2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// noFlushWriter hides the recorder's Flush method.
type noFlushWriter struct {
	http.ResponseWriter
}

func TestChatRequiresFlushableWriter(t *testing.T) {
	h := newTestHandler(t, handlerOpts{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hi","user_id":"u1","session_id":"s1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Writer = noFlushWriter{c.Response().Writer}

	if err := h.Chat(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	// The JSON error must land before any stream bytes commit the response.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"streaming not supported"}`, rec.Body.String())
}

func TestChatStreamsFrames(t *testing.T) {
	h := newTestHandler(t, handlerOpts{producer: &stubProducer{events: []agent.Event{
		{Kind: agent.EventChunk, Text: "Hello"},
		{Kind: agent.EventChunk, Text: " world"},
	}}})

	rec := postChat(t, h, `{"message":"hi","user_id":"u1","session_id":"s1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0:\"Hello\"\n0:\" world\"\nd:{\"finishReason\":\"stop\"}\n", rec.Body.String())
}

func TestChatStreamsBoundaryPair(t *testing.T) {
	h := newTestHandler(t, handlerOpts{producer: &stubProducer{events: []agent.Event{
		{Kind: agent.EventChunk, Text: "A"},
		{Kind: agent.EventBoundary},
		{Kind: agent.EventChunk, Text: "B"},
	}}})

	rec := postChat(t, h, `{"message":"hi","user_id":"u1","session_id":"s1"}`)

	want := "0:\"A\"\n" +
		"d:{\"finishReason\":\"continue\",\"usage\":{\"promptTokens\":0,\"completionTokens\":0}}\n" +
		"0:\"\"\n" +
		"0:\"B\"\n" +
		"d:{\"finishReason\":\"stop\"}\n"
	assert.Equal(t, want, rec.Body.String())
}

func TestChatRateLimited(t *testing.T) {
	h := newTestHandler(t, handlerOpts{limiter: ratelimit.New(1, time.Minute)})

	rec := postChat(t, h, `{"message":"hi","user_id":"u1","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postChat(t, h, `{"message":"hi again","user_id":"u1","session_id":"s1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"detail":"rate limit exceeded"}`, rec.Body.String())

	// A different user is unaffected.
	rec = postChat(t, h, `{"message":"hi","user_id":"u2","session_id":"s2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatCapacityExceeded(t *testing.T) {
	registry := session.New(1, 15*time.Minute)
	h := newTestHandler(t, handlerOpts{registry: registry})

	rec := postChat(t, h, `{"message":"hi","user_id":"u1","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postChat(t, h, `{"message":"hi","user_id":"u2","session_id":"s2"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The live pair keeps working at capacity.
	rec = postChat(t, h, `{"message":"more","user_id":"u1","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatProducerFailureIsSanitized(t *testing.T) {
	h := newTestHandler(t, handlerOpts{producer: &stubProducer{
		events: []agent.Event{{Kind: agent.EventChunk, Text: "partial"}},
		err:    errors.New("connection refused to 10.0.0.7:4000"),
	}})

	rec := postChat(t, h, `{"message":"hi","user_id":"u1","session_id":"s1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasSuffix(body, "d:{\"finishReason\":\"stop\"}\n"), "stream must end with a terminal frame: %q", body)
	assert.Contains(t, body, "0:\"partial\"\n")
	assert.NotContains(t, body, "10.0.0.7", "internal error detail leaked to the client")
}

func TestChatTouchesSessionAtEndOfTurn(t *testing.T) {
	registry := session.New(20, 15*time.Minute)
	h := newTestHandler(t, handlerOpts{registry: registry})

	rec := postChat(t, h, `{"message":"hi","user_id":"u1","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, registry.Len())
	assert.True(t, registry.Touch("u1", "s1"), "session not live after a completed turn")
}
