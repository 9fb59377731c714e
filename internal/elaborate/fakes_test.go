package elaborate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// fakeLLM scripts model behavior per prompt. jsonReplies maps a system
// prompt to the raw JSON the model "returns"; completeReply is the free
// markdown reply.
type fakeLLM struct {
	mu            sync.Mutex
	jsonReplies   map[string]string
	completeReply string
	completeErr   error
	jsonErr       error
	jsonCalls     int
	completeCalls int
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completeReply, nil
}

func (f *fakeLLM) CompleteJSON(_ context.Context, system, user string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsonCalls++
	if f.jsonErr != nil {
		return f.jsonErr
	}
	raw, ok := f.jsonReplies[system]
	if !ok {
		return apperr.Upstream(apperr.UpstreamBadRequest, "llm", 0, "unexpected prompt in test", nil)
	}
	return json.Unmarshal([]byte(raw), out)
}

func (f *fakeLLM) calls() (jsonCalls, completeCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jsonCalls, f.completeCalls
}

// fakeSearcher returns canned results.
type fakeSearcher struct {
	mu      sync.Mutex
	results []models.SearchResult
	err     error
	ncalls  int
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, maxResults int, region string) ([]models.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ncalls++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > maxResults {
		return f.results[:maxResults], nil
	}
	return f.results, nil
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu        sync.Mutex
	notes     map[string]*models.Note
	refs      map[string][]models.Reference
	saveCalls int
	saveErr   error
}

func newFakeStore(notes ...*models.Note) *fakeStore {
	s := &fakeStore{
		notes: map[string]*models.Note{},
		refs:  map[string][]models.Reference{},
	}
	for _, n := range notes {
		s.notes[n.ID] = n
	}
	return s
}

func (s *fakeStore) GetNote(_ context.Context, id string) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *fakeStore) SaveElaboration(_ context.Context, noteID string, rec *models.ElaborationRecord, refs []models.Reference, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	n, ok := s.notes[noteID]
	if !ok {
		return apperr.ErrNotFound
	}
	s.saveCalls++
	n.Elaboration = rec
	n.UpdatedAt = now
	s.refs[noteID] = refs
	return nil
}

func sampleResults(n int) []models.SearchResult {
	out := make([]models.SearchResult, n)
	for i := range out {
		out[i] = models.SearchResult{
			Title:       "Result",
			URL:         "https://example.org",
			Snippet:     "snippet",
			Source:      "web_search",
			RetrievedAt: time.Now(),
		}
	}
	return out
}
