package api

import "github.com/starford/ansuz/internal/models"

// CreateChapterRequest is the request body for creating a chapter.
type CreateChapterRequest struct {
	Title string `json:"title"`
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ElaborateRequest is the optional request body for elaboration.
type ElaborateRequest struct {
	Force bool `json:"force"`
}

// NoteDetail is the full note response with its references.
type NoteDetail struct {
	*models.Note
	References []models.Reference `json:"references"`
}
