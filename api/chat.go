package api

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/frateto/gateway/agent"
	"github.com/frateto/gateway/domain"
	"github.com/frateto/gateway/session"
	"github.com/frateto/gateway/stream"
)

const maxMessageLen = 10000

// failureMessage is the only generation-failure text a client ever sees; the
// real cause stays in the logs.
const failureMessage = "The assistant could not finish this response. Please try again."

// Chat handles one chat turn and streams the response.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}

	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "message must not be empty"})
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLen {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "message too long"})
	}
	if req.UserID == "" || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "user_id and session_id are required"})
	}

	requestID := "req_" + uuid.New().String()[:8]

	if !h.limiter.Allow(req.UserID, time.Now()) {
		log.Debug().Str("requestId", requestID).Str("userId", req.UserID).Msg("rate limit exceeded")
		return c.JSON(http.StatusTooManyRequests, map[string]string{"detail": "rate limit exceeded"})
	}

	if _, err := h.registry.GetOrCreate(req.UserID, req.SessionID); err != nil {
		if errors.Is(err, session.ErrCapacity) {
			log.Warn().Str("requestId", requestID).Int("liveSessions", h.registry.Len()).Msg("session capacity exceeded")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"detail": "server is at capacity, please try again later"})
		}
		log.Error().Err(err).Str("requestId", requestID).Msg("session lookup failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "internal error"})
	}

	// Must be checked before the response is committed.
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		log.Error().Str("requestId", requestID).Msg("response writer does not support flushing")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "streaming not supported"})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("x-vercel-ai-data-stream", "v1")
	c.Response().WriteHeader(http.StatusOK)

	fr := stream.NewFramer(c.Response().Writer, flusher)
	ctx := c.Request().Context()

	err := h.producer.Stream(ctx, agent.Request{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Message:   req.Message,
	}, func(ev agent.Event) error {
		switch ev.Kind {
		case agent.EventBoundary:
			return fr.Boundary()
		default:
			return fr.Chunk(ev.Text)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			// Client went away; nothing to send, stop pulling.
			log.Debug().Str("requestId", requestID).Str("sessionId", req.SessionID).Msg("client disconnected mid-stream")
			return nil
		}
		log.Error().Err(err).Str("requestId", requestID).Str("sessionId", req.SessionID).Msg("generation failed")
		if ferr := fr.Fail(failureMessage); ferr != nil {
			log.Error().Err(ferr).Str("requestId", requestID).Msg("failed to write error frame")
		}
		return nil
	}

	if err := fr.Done(); err != nil {
		log.Error().Err(err).Str("requestId", requestID).Msg("failed to write terminal frame")
		return nil
	}

	// Extend the TTL from end-of-turn rather than start-of-turn.
	h.registry.Touch(req.UserID, req.SessionID)
	return nil
}
