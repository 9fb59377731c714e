// Package models defines the domain types for Ansuz.
package models

import "time"

// Note kinds.
const (
	NoteKindText  = "text"
	NoteKindImage = "image"
)

// Note represents a single note inside a chapter.
// Body is empty for image notes; Elaboration holds the cached
// elaboration blob, if one has been generated.
type Note struct {
	ID          string             `json:"id"`
	ChapterID   string             `json:"chapter_id"`
	Kind        string             `json:"kind"`
	Title       string             `json:"title"`
	Body        string             `json:"body,omitempty"`
	ImageURL    string             `json:"image_url,omitempty"`
	Caption     string             `json:"caption,omitempty"`
	Elaboration *ElaborationRecord `json:"elaboration,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Chapter groups notes.
type Chapter struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reference is a persisted, ranked citation backing an elaboration.
// Rank is 1-based and defines citation order within its note.
type Reference struct {
	Rank    int    `json:"rank"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Section is one block of elaboration output.
type Section struct {
	Type    string `json:"type"` // "summary" or "elaboration"
	Content string `json:"content"`
}

// ElaborationRecord is the cached elaboration blob stored on a note.
// ContentHash is the fingerprint of the note body at generation time;
// the cache is valid only while it matches the current body.
type ElaborationRecord struct {
	ContentHash   string      `json:"content_hash"`
	Sections      []Section   `json:"sections"`
	References    []Reference `json:"references"`
	SearchQuery   string      `json:"search_query"`
	TokenEstimate int         `json:"token_estimate"`
}

// SearchResult is one normalized web search hit. Ephemeral: only the
// selected subset survives as References.
type SearchResult struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet"`
	Source      string    `json:"source"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// RankingDecision is the ranker's selection over one result set.
// Indices refer into the result slice handed to the ranker.
type RankingDecision struct {
	RankedIndices []int  `json:"ranked_indices"`
	Reasoning     string `json:"reasoning"`
}
