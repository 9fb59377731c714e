package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/elaborate"
	"github.com/starford/ansuz/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc  *noteservice.Service
	elab *elaborate.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, elab *elaborate.Service) *Handler {
	return &Handler{svc: svc, elab: elab}
}

// mapError translates service errors to an HTTP status and message.
// Internal details never leak; upstream failures surface as gateway
// errors with a generic message.
func mapError(err error) (int, string) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	}
	if ue, ok := apperr.AsUpstream(err); ok {
		if ue.Kind == apperr.UpstreamRateLimit {
			return http.StatusServiceUnavailable, "upstream provider is rate limited, try again later"
		}
		return http.StatusBadGateway, "upstream provider failed"
	}
	return http.StatusInternalServerError, "internal error"
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, msg := mapError(err)
	if status >= 500 {
		slog.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(msg))
}

// CreateChapter handles POST /chapters.
func (h *Handler) CreateChapter(w http.ResponseWriter, r *http.Request) {
	var req CreateChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ch, err := h.svc.CreateChapter(r.Context(), req.Title)
	if err != nil {
		h.fail(w, "create chapter", err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// ListChapters handles GET /chapters.
func (h *Handler) ListChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := h.svc.ListChapters(r.Context())
	if err != nil {
		h.fail(w, "list chapters", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
}

// DeleteChapter handles DELETE /chapters/{id}.
func (h *Handler) DeleteChapter(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteChapter(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete chapter", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateNote handles POST /chapters/{id}/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), noteservice.CreateNoteInput{
		ChapterID: chi.URLParam(r, "id"),
		Kind:      req.Kind,
		Title:     req.Title,
		Body:      req.Body,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		h.fail(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// ListNotes handles GET /chapters/{id}/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.ListNotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// GetNote handles GET /notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, refs, err := h.svc.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteDetail{Note: note, References: refs})
}

// UpdateNote handles PUT /notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), req.Title, req.Body)
	if err != nil {
		h.fail(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ElaborateNote handles POST /notes/{id}/elaborate.
// The body is optional; when present it may carry {"force": true} to
// bypass the cache and regenerate.
func (h *Handler) ElaborateNote(w http.ResponseWriter, r *http.Request) {
	if h.elab == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("elaboration is not configured"))
		return
	}

	var req ElaborateRequest
	if body, err := io.ReadAll(io.LimitReader(r.Body, 4<<10)); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}

	result, err := h.elab.Elaborate(r.Context(), chi.URLParam(r, "id"), req.Force)
	if err != nil {
		h.fail(w, "elaborate note", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
