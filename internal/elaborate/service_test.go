package elaborate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/fingerprint"
	"github.com/starford/ansuz/internal/models"
)

const noteBody = "Neural networks are computing systems inspired by biological brains."

func pipelineLLM() *fakeLLM {
	return &fakeLLM{
		jsonReplies: map[string]string{
			queryBuilderSystem: `{"queries":["what are neural networks"],"keywords":["neural","networks"]}`,
			rankerSystem:       `{"ranked_indices":[0,1,2,3,4,5,6,7],"reasoning":"ordered"}`,
		},
		completeReply: "Networks learn weights [1] via backpropagation [2].",
	}
}

func textNote(id, body string) *models.Note {
	now := time.Now().UTC()
	return &models.Note{
		ID:        id,
		ChapterID: "ch1",
		Kind:      models.NoteKindText,
		Title:     "Neural networks",
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newPipeline(store Store, llm *fakeLLM, searcher Searcher) *Service {
	return NewService(store, NewQueryBuilder(llm), searcher, NewRanker(llm), NewGenerator(llm), nil, Config{})
}

func TestElaborateMissingNote(t *testing.T) {
	svc := newPipeline(newFakeStore(), pipelineLLM(), &fakeSearcher{})

	_, err := svc.Elaborate(context.Background(), "nope", false)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestElaborateEmptyBodyFailsBeforeUpstream(t *testing.T) {
	llm := pipelineLLM()
	searcher := &fakeSearcher{}
	store := newFakeStore(textNote("n1", "   \n\t"))
	svc := newPipeline(store, llm, searcher)

	_, err := svc.Elaborate(context.Background(), "n1", false)
	assert.True(t, apperr.IsValidation(err))

	jsonCalls, completeCalls := llm.calls()
	assert.Zero(t, jsonCalls+completeCalls)
	assert.Zero(t, searcher.ncalls)
}

func TestElaborateFullPipeline(t *testing.T) {
	llm := pipelineLLM()
	searcher := &fakeSearcher{results: sampleResults(10)}
	store := newFakeStore(textNote("n1", noteBody))
	svc := newPipeline(store, llm, searcher)

	res, err := svc.Elaborate(context.Background(), "n1", false)
	require.NoError(t, err)

	require.Len(t, res.Sections, 2)
	assert.Equal(t, "summary", res.Sections[0].Type)
	assert.Equal(t, noteBody, res.Sections[0].Content, "short body is its own summary")
	assert.Equal(t, "elaboration", res.Sections[1].Type)
	assert.Contains(t, res.Sections[1].Content, "[1]")

	// Ranker asked for 6, model offered 8 in-range indices, truncated to 6.
	require.Len(t, res.References, 6)
	for i, ref := range res.References {
		assert.Equal(t, i+1, ref.Rank, "rank is the 1-based position")
	}

	assert.False(t, res.Metadata.Cached)
	assert.Equal(t, "what are neural networks", res.Metadata.SearchQuery)
	assert.Equal(t, 10, res.Metadata.SourcesFound)
	assert.Equal(t, 6, res.Metadata.SourcesUsed)
	assert.Positive(t, res.Metadata.Tokens)

	// Persisted blob mirrors the response.
	saved, err := store.GetNote(context.Background(), "n1")
	require.NoError(t, err)
	require.NotNil(t, saved.Elaboration)
	assert.Equal(t, fingerprint.Sum(noteBody), saved.Elaboration.ContentHash)
	assert.Len(t, store.refs["n1"], 6)
}

func TestSummaryTruncated(t *testing.T) {
	llm := pipelineLLM()
	searcher := &fakeSearcher{results: sampleResults(2)}
	long := strings.Repeat("neural networks ", 30) // well over 200 chars
	store := newFakeStore(textNote("n1", long))
	svc := newPipeline(store, llm, searcher)

	res, err := svc.Elaborate(context.Background(), "n1", false)
	require.NoError(t, err)
	require.Equal(t, "summary", res.Sections[0].Type)
	assert.Len(t, []rune(res.Sections[0].Content), 200)
}

func TestElaborateCacheHitMakesNoUpstreamCalls(t *testing.T) {
	llm := pipelineLLM()
	searcher := &fakeSearcher{results: sampleResults(3)}
	n := textNote("n1", noteBody)
	n.Elaboration = &models.ElaborationRecord{
		ContentHash:   fingerprint.Sum(noteBody),
		Sections:      []models.Section{{Type: "elaboration", Content: "cached text"}},
		References:    []models.Reference{{Rank: 1, Title: "A"}},
		SearchQuery:   "old query",
		TokenEstimate: 42,
	}
	n.UpdatedAt = time.Now().Add(-time.Hour)
	store := newFakeStore(n)
	svc := newPipeline(store, llm, searcher)

	res, err := svc.Elaborate(context.Background(), "n1", false)
	require.NoError(t, err)

	assert.True(t, res.Metadata.Cached)
	assert.Equal(t, "old query", res.Metadata.SearchQuery)
	assert.Equal(t, 42, res.Metadata.Tokens)
	assert.Positive(t, res.Metadata.CacheAgeSeconds)
	assert.Equal(t, "cached text", res.Sections[0].Content)

	jsonCalls, completeCalls := llm.calls()
	assert.Zero(t, jsonCalls+completeCalls, "cache hit must not reach the model")
	assert.Zero(t, searcher.ncalls, "cache hit must not reach the search provider")
	assert.Zero(t, store.saveCalls, "cache hit must not persist anything")
}

func TestElaborateStaleHashIsMiss(t *testing.T) {
	llm := pipelineLLM()
	searcher := &fakeSearcher{results: sampleResults(3)}
	n := textNote("n1", noteBody)
	n.Elaboration = &models.ElaborationRecord{
		ContentHash: fingerprint.Sum("a different body"),
		Sections:    []models.Section{{Type: "elaboration", Content: "stale"}},
	}
	store := newFakeStore(n)
	svc := newPipeline(store, llm, searcher)

	res, err := svc.Elaborate(context.Background(), "n1", false)
	require.NoError(t, err)
	assert.False(t, res.Metadata.Cached, "fresh timestamp with stale hash is a miss")
	assert.Equal(t, 1, searcher.ncalls)
}

func TestElaborateExpiredTTLIsMiss(t *testing.T) {
	llm := pipelineLLM()
	searcher := &fakeSearcher{results: sampleResults(3)}
	n := textNote("n1", noteBody)
	n.Elaboration = &models.ElaborationRecord{ContentHash: fingerprint.Sum(noteBody)}
	n.UpdatedAt = time.Now().Add(-25 * time.Hour)
	store := newFakeStore(n)
	svc := newPipeline(store, llm, searcher)

	res, err := svc.Elaborate(context.Background(), "n1", false)
	require.NoError(t, err)
	assert.False(t, res.Metadata.Cached, "matching hash older than TTL is a miss")
}

func TestElaborateForceBypassesCache(t *testing.T) {
	llm := pipelineLLM()
	searcher := &fakeSearcher{results: sampleResults(3)}
	n := textNote("n1", noteBody)
	n.Elaboration = &models.ElaborationRecord{
		ContentHash: fingerprint.Sum(noteBody),
		References:  []models.Reference{{Rank: 1, Title: "old"}},
	}
	store := newFakeStore(n)
	svc := newPipeline(store, llm, searcher)

	res, err := svc.Elaborate(context.Background(), "n1", true)
	require.NoError(t, err)
	assert.False(t, res.Metadata.Cached)
	assert.Equal(t, 1, searcher.ncalls, "force must re-run the full pipeline")
	assert.Equal(t, 1, store.saveCalls, "force must overwrite stored references")
	assert.NotEqual(t, "old", store.refs["n1"][0].Title)
}

func TestElaborateNoResultsPath(t *testing.T) {
	llm := pipelineLLM()
	llm.completeReply = "An uncited explanation of neural networks."
	searcher := &fakeSearcher{results: nil}
	store := newFakeStore(textNote("n1", noteBody))
	svc := newPipeline(store, llm, searcher)

	res, err := svc.Elaborate(context.Background(), "n1", false)
	require.NoError(t, err, "zero results is a degraded success, not a failure")

	require.Len(t, res.Sections, 1, "no-results path has a single elaboration section")
	assert.Equal(t, "elaboration", res.Sections[0].Type)
	assert.Empty(t, res.References)
	assert.Zero(t, res.Metadata.Tokens)
	assert.Equal(t, 0, res.Metadata.SourcesFound)

	saved, _ := store.GetNote(context.Background(), "n1")
	require.NotNil(t, saved.Elaboration)
	assert.Empty(t, saved.Elaboration.References)
	assert.Zero(t, saved.Elaboration.TokenEstimate)
}

func TestElaborateKeywordFallback(t *testing.T) {
	llm := pipelineLLM()
	llm.jsonReplies[queryBuilderSystem] = `{"queries":[],"keywords":["neural","networks","basics"]}`
	searcher := &fakeSearcher{results: sampleResults(2)}
	store := newFakeStore(textNote("n1", noteBody))
	svc := newPipeline(store, llm, searcher)

	_, err := svc.Elaborate(context.Background(), "n1", false)
	require.NoError(t, err)
	require.Len(t, searcher.queries, 1)
	assert.Equal(t, "neural networks basics", searcher.queries[0])
}

func TestElaborateMidPipelineFailurePersistsNothing(t *testing.T) {
	llm := pipelineLLM()
	llm.completeErr = apperr.Upstream(apperr.UpstreamServer, "llm", 500, "boom", nil)
	searcher := &fakeSearcher{results: sampleResults(3)}
	store := newFakeStore(textNote("n1", noteBody))
	svc := newPipeline(store, llm, searcher)

	_, err := svc.Elaborate(context.Background(), "n1", false)
	require.Error(t, err)
	ue, ok := apperr.AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, apperr.UpstreamServer, ue.Kind)

	assert.Zero(t, store.saveCalls, "failed generation must not persist partial state")
	saved, _ := store.GetNote(context.Background(), "n1")
	assert.Nil(t, saved.Elaboration)
}

func TestElaborateCoalescesConcurrentRequests(t *testing.T) {
	llm := pipelineLLM()
	store := newFakeStore(textNote("n1", noteBody))

	// A slow searcher keeps the first run in flight while the rest arrive.
	slow := &slowSearcher{inner: &fakeSearcher{results: sampleResults(3)}, delay: 50 * time.Millisecond}
	svc := newPipeline(store, llm, slow)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Elaborate(context.Background(), "n1", false)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, 1, slow.inner.ncalls, "concurrent non-forced requests must coalesce into one run")
	assert.Equal(t, 1, store.saveCalls)
}

type slowSearcher struct {
	inner *fakeSearcher
	delay time.Duration
}

func (s *slowSearcher) Search(ctx context.Context, query string, maxResults int, region string) ([]models.SearchResult, error) {
	time.Sleep(s.delay)
	return s.inner.Search(ctx, query, maxResults, region)
}
