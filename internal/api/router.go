package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/elaborate"
	"github.com/starford/ansuz/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// limiter, if non-nil, rate-limits the elaboration endpoint per client.
// uploadsDir is the directory backing attachment uploads.
func NewRouter(svc *noteservice.Service, elab *elaborate.Service, authEnabled bool, token string, limiter *RateLimiter, uploadsDir string) chi.Router {
	h := NewHandler(svc, elab)
	ah := NewAttachmentHandler(uploadsDir)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Chapters.
	r.Get("/chapters", h.ListChapters)
	r.Post("/chapters", h.CreateChapter)
	r.Delete("/chapters/{id}", h.DeleteChapter)

	// Notes within a chapter.
	r.Get("/chapters/{id}/notes", h.ListNotes)
	r.Post("/chapters/{id}/notes", h.CreateNote)

	// Notes.
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Elaboration, rate-limited per client.
	if limiter != nil {
		r.With(limiter.Middleware).Post("/notes/{id}/elaborate", h.ElaborateNote)
	} else {
		r.Post("/notes/{id}/elaborate", h.ElaborateNote)
	}

	// Attachments (image uploads for image notes).
	r.Post("/attachments", ah.Upload)
	r.Get("/attachments/{filename}", ah.ServeFile)

	return r
}
