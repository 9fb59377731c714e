package elaborate

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/redact"
)

const rankerSystem = `You rank web search results by source credibility for a study note.
Prefer educational domains (.edu), official documentation, and reputable
publishers. Favor recent material and diverse source domains; avoid
selecting multiple results from the same domain.
Reply with a JSON object of the form
{"ranked_indices": [0, 2, 5], "reasoning": "..."}
listing the indices of the best results, most credible first.
Reply with JSON only.`

// Ranker orders search results by estimated source credibility.
type Ranker struct {
	llm ModelClient
}

// NewRanker creates a ranker over the given model client.
func NewRanker(llm ModelClient) *Ranker {
	return &Ranker{llm: llm}
}

// Rerank selects at most topN result indices, most credible first. An
// empty result set short-circuits locally with no model call. The
// returned indices are truncated to topN but not range-checked; callers
// filter out-of-range indices before dereferencing.
func (r *Ranker) Rerank(ctx context.Context, noteBody string, results []models.SearchResult, topN int) (*models.RankingDecision, error) {
	if len(results) == 0 {
		return &models.RankingDecision{RankedIndices: []int{}, Reasoning: "No results to rank"}, nil
	}
	if topN < 1 {
		topN = 1
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Note:\n%s\n\nSearch results:\n", redact.Scrub(noteBody))
	for i, res := range results {
		fmt.Fprintf(&sb, "[%d] %s\n    %s\n    %s\n", i, res.Title, res.URL, redact.Scrub(res.Snippet))
	}
	fmt.Fprintf(&sb, "\nSelect the %d most credible results.", topN)

	var decision models.RankingDecision
	if err := r.llm.CompleteJSON(ctx, rankerSystem, sb.String(), &decision); err != nil {
		return nil, err
	}
	if decision.RankedIndices == nil {
		decision.RankedIndices = []int{}
	}
	if len(decision.RankedIndices) > topN {
		decision.RankedIndices = decision.RankedIndices[:topN]
	}
	return &decision, nil
}
