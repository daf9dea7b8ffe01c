// Package domain holds the shared types of the gateway.
package domain

import "time"

// Session represents one user's conversational context. A session is live
// from its first accepted request until the background sweep evicts it.
type Session struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// SQLToolRequest is the payload of the agent runtime's SQL tool callback.
type SQLToolRequest struct {
	Query string `json:"query"`
}

// SQLToolResponse is the result of a guarded query execution.
type SQLToolResponse struct {
	Query    string          `json:"query,omitempty"`
	Columns  []string        `json:"columns,omitempty"`
	Rows     [][]interface{} `json:"rows,omitempty"`
	RowCount int             `json:"row_count"`
	Error    *ToolError      `json:"error,omitempty"`
}

// ToolError is a structured failure payload returned to the agent runtime.
// Reason is set only for query_rejected and matches the guard's reason enum.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message"`
}

// TableSchema describes one table of the read-only dataset.
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}
