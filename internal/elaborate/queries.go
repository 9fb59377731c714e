// Package elaborate implements the elaboration pipeline: query
// construction, web search, credibility re-ranking, citation-grounded
// generation, and the orchestrator tying them together with
// content-hash cache validity.
package elaborate

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/redact"
)

// ModelClient is the slice of the llm client the pipeline stages use.
type ModelClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CompleteJSON(ctx context.Context, system, user string, out any) error
}

const queryBuilderSystem = `You generate web search queries for a research assistant.
Given a study note, reply with a JSON object of the form
{"queries": ["..."], "keywords": ["..."]}
where "queries" holds the requested number of focused search queries and
"keywords" holds 3-6 standalone keywords usable as a fallback search.
Reply with JSON only.`

// QueryPlan is the query builder's output: candidate search queries plus
// a keyword list used as a fallback search string.
type QueryPlan struct {
	Queries  []string `json:"queries"`
	Keywords []string `json:"keywords"`
}

// QueryBuilder derives search queries from note content.
type QueryBuilder struct {
	llm ModelClient
}

// NewQueryBuilder creates a query builder over the given model client.
func NewQueryBuilder(llm ModelClient) *QueryBuilder {
	return &QueryBuilder{llm: llm}
}

// Build asks the model for about desiredCount queries. The model may
// return fewer or more; callers take what they need. PII is scrubbed
// from the note body before it enters the prompt.
func (b *QueryBuilder) Build(ctx context.Context, noteBody string, desiredCount int) (*QueryPlan, error) {
	if strings.TrimSpace(noteBody) == "" {
		return nil, apperr.Validation("note content is required to build queries")
	}
	if desiredCount < 1 {
		desiredCount = 1
	}

	user := fmt.Sprintf("Generate %d search queries for this note:\n\n%s", desiredCount, redact.Scrub(noteBody))

	var plan QueryPlan
	if err := b.llm.CompleteJSON(ctx, queryBuilderSystem, user, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}
