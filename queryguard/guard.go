// Package queryguard validates and constrains free-form SQL before it is
// allowed to touch the read-only store. It is a lexical filter, not a SQL
// parser: a tokenizer extracts facts about the statement (leading keyword,
// bare keywords outside string literals, statement count, LIMIT value) and an
// OPA policy turns those facts into a verdict. The read-only database handle
// remains the hard enforcement boundary.
package queryguard

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// Rejection reasons, enumerated so the LLM-driven caller can self-correct.
const (
	ReasonEmptyQuery         = "empty_query"
	ReasonMultipleStatements = "multiple_statements"
	ReasonForbiddenKeyword   = "forbidden_keyword"
	ReasonLimitExceeded      = "limit_exceeded"
)

// RejectError is returned by Validate when the statement is refused.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "query rejected: " + e.Reason
}

// GuardedQuery is an accepted statement, normalized with a row-limit clause.
type GuardedQuery struct {
	Query string
}

// Guard evaluates statements against the embedded verdict policy.
type Guard struct {
	query        rego.PreparedEvalQuery
	defaultLimit int
	maxLimit     int
}

// NewGuard prepares the verdict policy. Statements without a LIMIT clause get
// one appended with defaultLimit; a present LIMIT above maxLimit is rejected
// rather than silently rewritten. SQLite reads LIMIT -1 as unlimited, so
// non-positive and unparseable LIMIT operands are rejected too.
func NewGuard(ctx context.Context, defaultLimit, maxLimit int) (*Guard, error) {
	r := rego.New(
		rego.Query("data.sqlguard.decision"),
		rego.Module("sqlguard.rego", verdictPolicy),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Guard{query: query, defaultLimit: defaultLimit, maxLimit: maxLimit}, nil
}

// Validate checks a raw statement and returns its normalized form, or a
// *RejectError carrying the enumerated reason.
func (g *Guard) Validate(ctx context.Context, raw string) (GuardedQuery, error) {
	trimmed := strings.TrimSpace(raw)
	facts := lex(trimmed)

	input := map[string]interface{}{
		"leading_keyword": facts.leading,
		"keywords":        facts.words,
		"statement_count": facts.statementCount,
		"has_limit":       facts.hasLimit,
		"limit":           facts.limit,
		"max_limit":       g.maxLimit,
	}

	results, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return GuardedQuery{}, fmt.Errorf("failed to evaluate guard policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return GuardedQuery{}, fmt.Errorf("guard policy returned no decision")
	}
	decision, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return GuardedQuery{}, fmt.Errorf("guard policy returned unexpected type %T", results[0].Expressions[0].Value)
	}

	if decision != "allow" {
		return GuardedQuery{}, &RejectError{Reason: decision}
	}

	normalized := strings.TrimRight(trimmed, "; \t\n")
	if !facts.hasLimit {
		sep := " "
		if facts.endsInLineComment {
			sep = "\n"
		}
		normalized = fmt.Sprintf("%s%sLIMIT %d", normalized, sep, g.defaultLimit)
	}
	return GuardedQuery{Query: normalized}, nil
}

// verdictPolicy maps the tokenizer's facts to a decision. The first matching
// clause in the else chain wins; statements that trip nothing are allowed.
const verdictPolicy = `
package sqlguard

import rego.v1

default decision := "allow"

decision := "empty_query" if {
	input.statement_count == 0
} else := "multiple_statements" if {
	input.statement_count > 1
} else := "forbidden_keyword" if {
	input.leading_keyword != "select"
} else := "forbidden_keyword" if {
	some kw in input.keywords
	kw in forbidden
} else := "limit_exceeded" if {
	input.has_limit
	input.limit > input.max_limit
} else := "limit_exceeded" if {
	input.has_limit
	input.limit < 1
}

forbidden := {
	"insert", "update", "delete", "drop", "alter", "create", "replace",
	"truncate", "attach", "detach", "pragma", "vacuum", "reindex",
}
`
