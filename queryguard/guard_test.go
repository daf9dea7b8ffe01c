package queryguard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/frateto/gateway/queryguard"
)

func newTestGuard(t *testing.T) *queryguard.Guard {
	t.Helper()
	g, err := queryguard.NewGuard(context.Background(), 100, 1000)
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}
	return g
}

func TestNewGuardPreparesPolicy(t *testing.T) {
	g, err := queryguard.NewGuard(context.Background(), 100, 1000)
	assert.NoError(t, err)
	assert.NotNil(t, g)
}

func TestValidateAccepted(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"appends default limit", "SELECT * FROM votes", "SELECT * FROM votes LIMIT 100"},
		{"keeps explicit limit", "SELECT * FROM votes LIMIT 5", "SELECT * FROM votes LIMIT 5"},
		{"keyword inside string literal", "SELECT 'please delete this note' FROM votes LIMIT 5", "SELECT 'please delete this note' FROM votes LIMIT 5"},
		{"keyword inside quoted identifier", `SELECT "delete" FROM votes LIMIT 5`, `SELECT "delete" FROM votes LIMIT 5`},
		{"strips trailing terminator", "SELECT * FROM votes;", "SELECT * FROM votes LIMIT 100"},
		{"subquery", "SELECT * FROM votes WHERE id IN (SELECT vote_id FROM member_votes) LIMIT 5", "SELECT * FROM votes WHERE id IN (SELECT vote_id FROM member_votes) LIMIT 5"},
		{"comment is ignored", "SELECT * FROM votes -- drop me later", "SELECT * FROM votes -- drop me later\nLIMIT 100"},
		{"escaped quote in literal", "SELECT * FROM groups WHERE label = 'People''s Party' LIMIT 5", "SELECT * FROM groups WHERE label = 'People''s Party' LIMIT 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Validate(ctx, tt.raw)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got.Query)
		})
	}
}

func TestValidateRejected(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty", "", queryguard.ReasonEmptyQuery},
		{"whitespace only", "   \n\t", queryguard.ReasonEmptyQuery},
		{"statement chaining", "SELECT * FROM votes; DROP TABLE votes", queryguard.ReasonMultipleStatements},
		{"two selects", "SELECT 1; SELECT 2", queryguard.ReasonMultipleStatements},
		{"leading insert", "INSERT INTO votes VALUES (1)", queryguard.ReasonForbiddenKeyword},
		{"leading pragma", "PRAGMA table_info(votes)", queryguard.ReasonForbiddenKeyword},
		{"embedded delete", "SELECT * FROM votes WHERE id = 1 OR delete", queryguard.ReasonForbiddenKeyword},
		{"attach database", "SELECT * FROM votes ATTACH DATABASE 'x' AS y", queryguard.ReasonForbiddenKeyword},
		{"limit above cap", "SELECT * FROM votes LIMIT 5000", queryguard.ReasonLimitExceeded},
		{"negative limit", "SELECT * FROM votes LIMIT -1", queryguard.ReasonLimitExceeded},
		{"zero limit", "SELECT * FROM votes LIMIT 0", queryguard.ReasonLimitExceeded},
		{"non-numeric limit", "SELECT * FROM votes LIMIT abc", queryguard.ReasonLimitExceeded},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", queryguard.ReasonForbiddenKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Validate(ctx, tt.raw)
			var reject *queryguard.RejectError
			if !errors.As(err, &reject) {
				t.Fatalf("expected RejectError, got %v", err)
			}
			assert.Equal(t, tt.reason, reject.Reason)
		})
	}
}

func TestValidateLimitAtCap(t *testing.T) {
	g := newTestGuard(t)

	got, err := g.Validate(context.Background(), "SELECT * FROM votes LIMIT 1000")
	assert.NoError(t, err)
	assert.Equal(t, "SELECT * FROM votes LIMIT 1000", got.Query)
}
