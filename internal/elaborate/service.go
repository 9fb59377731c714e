package elaborate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/fingerprint"
	"github.com/starford/ansuz/internal/metrics"
	"github.com/starford/ansuz/internal/models"
)

const summaryChars = 200

// Store is the persistence slice the orchestrator needs.
type Store interface {
	GetNote(ctx context.Context, id string) (*models.Note, error)
	SaveElaboration(ctx context.Context, noteID string, rec *models.ElaborationRecord, refs []models.Reference, now time.Time) error
}

// Searcher is the web search slice the orchestrator needs.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, region string) ([]models.SearchResult, error)
}

// Config holds the pipeline knobs.
type Config struct {
	TTL           time.Duration // cache time-to-live
	MaxSources    int           // sources requested from the ranker
	SearchResults int           // results requested from the search provider
	Region        string        // search region code
}

// Result is the response shape of one elaboration request.
type Result struct {
	Sections   []models.Section   `json:"sections"`
	References []models.Reference `json:"references"`
	Metadata   Metadata           `json:"metadata"`
}

// Metadata describes how the result was produced.
type Metadata struct {
	Cached          bool   `json:"cached"`
	SearchQuery     string `json:"search_query,omitempty"`
	Tokens          int    `json:"tokens"`
	ElapsedMs       int64  `json:"elapsed_ms,omitempty"`
	CacheAgeSeconds int64  `json:"cache_age_seconds,omitempty"`
	SourcesFound    int    `json:"sources_found,omitempty"`
	SourcesUsed     int    `json:"sources_used,omitempty"`
}

// Service orchestrates the elaboration pipeline. All collaborators are
// injected; the service holds no global state beyond the in-flight
// request group that coalesces concurrent non-forced requests per note.
type Service struct {
	store     Store
	queries   *QueryBuilder
	searcher  Searcher
	ranker    *Ranker
	generator *Generator
	metrics   *metrics.Metrics
	cfg       Config

	flight singleflight.Group
}

// NewService wires the pipeline stages into an orchestrator.
func NewService(store Store, queries *QueryBuilder, searcher Searcher, ranker *Ranker, generator *Generator, m *metrics.Metrics, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = fingerprint.DefaultTTL
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 6
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = 10
	}
	if cfg.Region == "" {
		cfg.Region = "us"
	}
	return &Service{
		store:     store,
		queries:   queries,
		searcher:  searcher,
		ranker:    ranker,
		generator: generator,
		metrics:   m,
		cfg:       cfg,
	}
}

// Elaborate runs the pipeline for one note. Concurrent non-forced
// requests for the same note are coalesced into a single run; forced
// requests always execute the full pipeline.
func (s *Service) Elaborate(ctx context.Context, noteID string, force bool) (*Result, error) {
	if force {
		return s.run(ctx, noteID, true)
	}
	v, err, _ := s.flight.Do(noteID, func() (any, error) {
		return s.run(ctx, noteID, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) run(ctx context.Context, noteID string, force bool) (*Result, error) {
	start := time.Now()

	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(note.Body) == "" {
		return nil, apperr.Validation("note has no text content to elaborate")
	}

	// Fast path: stored hash matches the current body and the entry is
	// within TTL. Completes without any external call.
	if rec := note.Elaboration; !force && rec != nil &&
		fingerprint.CacheValid(rec.ContentHash, note.Body, note.UpdatedAt, s.cfg.TTL) {
		s.metrics.ObserveElaboration(metrics.OutcomeCacheHit, time.Since(start))
		return &Result{
			Sections:   nonNilSections(rec.Sections),
			References: nonNilRefs(rec.References),
			Metadata: Metadata{
				Cached:          true,
				SearchQuery:     rec.SearchQuery,
				Tokens:          rec.TokenEstimate,
				CacheAgeSeconds: int64(time.Since(note.UpdatedAt).Seconds()),
			},
		}, nil
	}

	res, err := s.generate(ctx, note, start)
	if err != nil {
		s.metrics.ObserveElaboration(metrics.OutcomeError, time.Since(start))
		return nil, err
	}
	return res, nil
}

// generate executes the miss path: build query, search, rank, generate,
// persist. Nothing is persisted unless generation succeeds.
func (s *Service) generate(ctx context.Context, note *models.Note, start time.Time) (*Result, error) {
	plan, err := s.queries.Build(ctx, note.Body, 1)
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	query := chooseQuery(plan, note.Body)

	results, err := s.searcher.Search(ctx, query, s.cfg.SearchResults, s.cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	s.metrics.ObserveSearchResults(len(results))

	var (
		chosen   []models.SearchResult
		markdown string
		outcome  string
	)
	if len(results) == 0 {
		// Degraded path: elaborate without citations. This is a success,
		// not a failure.
		markdown, err = s.generator.Elaborate(ctx, note.Body, nil)
		if err != nil {
			return nil, fmt.Errorf("generating uncited elaboration: %w", err)
		}
		outcome = metrics.OutcomeNoResults
	} else {
		decision, rankErr := s.ranker.Rerank(ctx, note.Body, results, s.cfg.MaxSources)
		if rankErr != nil {
			return nil, fmt.Errorf("ranking results: %w", rankErr)
		}
		for _, idx := range decision.RankedIndices {
			if idx >= 0 && idx < len(results) {
				chosen = append(chosen, results[idx])
			}
		}
		markdown, err = s.generator.Elaborate(ctx, note.Body, chosen)
		if err != nil {
			return nil, fmt.Errorf("generating elaboration: %w", err)
		}
		outcome = metrics.OutcomeGenerated
	}

	refs := make([]models.Reference, len(chosen))
	for i, src := range chosen {
		refs[i] = models.Reference{Rank: i + 1, Title: src.Title, URL: src.URL, Snippet: src.Snippet}
	}

	var sections []models.Section
	if len(results) == 0 {
		sections = []models.Section{{Type: "elaboration", Content: markdown}}
	} else {
		sections = []models.Section{
			{Type: "summary", Content: summarize(note.Body)},
			{Type: "elaboration", Content: markdown},
		}
	}

	tokens := 0
	if len(results) > 0 {
		tokens = estimateTokens(note.Body, markdown, chosen)
	}

	rec := &models.ElaborationRecord{
		ContentHash:   fingerprint.Sum(note.Body),
		Sections:      sections,
		References:    refs,
		SearchQuery:   query,
		TokenEstimate: tokens,
	}
	if err := s.store.SaveElaboration(ctx, note.ID, rec, refs, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("persisting elaboration: %w", err)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveElaboration(outcome, elapsed)

	return &Result{
		Sections:   sections,
		References: refs,
		Metadata: Metadata{
			Cached:       false,
			SearchQuery:  query,
			Tokens:       tokens,
			ElapsedMs:    elapsed.Milliseconds(),
			SourcesFound: len(results),
			SourcesUsed:  len(chosen),
		},
	}, nil
}

// chooseQuery picks the first usable query from the plan, falling back
// to the joined keyword list, then to a clipped slice of the body.
func chooseQuery(plan *QueryPlan, body string) string {
	for _, q := range plan.Queries {
		if trimmed := strings.TrimSpace(q); trimmed != "" {
			return trimmed
		}
	}
	if kw := strings.TrimSpace(strings.Join(plan.Keywords, " ")); kw != "" {
		return kw
	}
	return clip(strings.TrimSpace(body), 120)
}

func summarize(body string) string {
	return clip(strings.TrimSpace(body), summaryChars)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// estimateTokens is a rough size-based approximation, not a tokenizer:
// character count of the inputs divided by four.
func estimateTokens(body, markdown string, sources []models.SearchResult) int {
	serialized, _ := json.Marshal(sources)
	return (len(body) + len(markdown) + len(serialized)) / 4
}

func nonNilSections(s []models.Section) []models.Section {
	if s == nil {
		return []models.Section{}
	}
	return s
}

func nonNilRefs(r []models.Reference) []models.Reference {
	if r == nil {
		return []models.Reference{}
	}
	return r
}
