package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/frateto/gateway/domain"
	"github.com/frateto/gateway/queryguard"
)

// ExecuteSQL runs a guarded query on behalf of the agent runtime. Rejections
// and execution failures come back as structured tool errors with a 200, so
// the LLM caller can read the reason and reformulate.
// POST /v1/tools/sql
func (h *Handler) ExecuteSQL(c echo.Context) error {
	var req domain.SQLToolRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}

	ctx := c.Request().Context()

	guarded, err := h.guard.Validate(ctx, req.Query)
	if err != nil {
		var reject *queryguard.RejectError
		if errors.As(err, &reject) {
			return c.JSON(http.StatusOK, domain.SQLToolResponse{
				Error: &domain.ToolError{
					Kind:    domain.ErrorKindQueryRejected,
					Reason:  reject.Reason,
					Message: h.rejectionMessage(reject.Reason),
				},
			})
		}
		log.Error().Err(err).Msg("query guard evaluation failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "internal error"})
	}

	columns, rows, err := h.executor.Execute(ctx, guarded.Query)
	if err != nil {
		log.Error().Err(err).Str("query", guarded.Query).Msg("query execution failed")
		return c.JSON(http.StatusOK, domain.SQLToolResponse{
			Error: &domain.ToolError{
				Kind:    domain.ErrorKindUpstreamFailure,
				Message: "query execution failed",
			},
		})
	}

	return c.JSON(http.StatusOK, domain.SQLToolResponse{
		Query:    guarded.Query,
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
	})
}

// GetSchema returns the dataset's table and column inventory.
// GET /v1/schema
func (h *Handler) GetSchema(c echo.Context) error {
	tables, err := h.executor.Schema(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("schema introspection failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "internal error"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tables": tables})
}

func (h *Handler) rejectionMessage(reason string) string {
	switch reason {
	case queryguard.ReasonEmptyQuery:
		return "the query is empty"
	case queryguard.ReasonMultipleStatements:
		return "only a single statement is allowed; remove everything after the first semicolon"
	case queryguard.ReasonForbiddenKeyword:
		return "only read-only SELECT queries are allowed"
	case queryguard.ReasonLimitExceeded:
		return fmt.Sprintf("the LIMIT clause exceeds the maximum of %d rows; lower it", h.config.MaxRowLimit)
	default:
		return "the query was rejected"
	}
}
