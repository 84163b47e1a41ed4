// discussion.go — комментарии, результаты экспертиз и запросы доступа к улике.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/blockevidence/internal/service"
)

type commentRequest struct {
	Content string `json:"content" validate:"max=5000"`
}

type labResultRequest struct {
	Title    string `json:"title" validate:"max=200"`
	Summary  string `json:"summary" validate:"max=5000"`
	Findings string `json:"findings" validate:"max=20000"`
}

type accessRequestCreate struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// accessRequestReview — reviewNotes, как в модели ответа; notes
// принимается как синоним.
type accessRequestReview struct {
	Status      string `json:"status" validate:"max=32"`
	ReviewNotes string `json:"reviewNotes" validate:"max=2000"`
	Notes       string `json:"notes" validate:"max=2000"`
}

func (r accessRequestReview) notes() string {
	if r.ReviewNotes != "" {
		return r.ReviewNotes
	}
	return r.Notes
}

// ListComments — GET /api/v1/evidence/{id}/comments.
func (h *APIHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch comments")
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// AddComment — POST /api/v1/evidence/{id}/comments.
func (h *APIHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	c, err := h.comments.AddComment(r.Context(), p, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		h.fail(w, r, err, "Failed to add comment")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// DeleteComment — DELETE /api/v1/evidence/{id}/comments/{commentId}.
func (h *APIHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	err := h.comments.DeleteComment(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "commentId"))
	if err != nil {
		h.fail(w, r, err, "Failed to delete comment")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ListLabResults — GET /api/v1/evidence/{id}/lab-results.
func (h *APIHandler) ListLabResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.comments.ListLabResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch lab results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// SubmitLabResult — POST /api/v1/evidence/{id}/lab-results.
func (h *APIHandler) SubmitLabResult(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req labResultRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.comments.SubmitLabResult(r.Context(), p, chi.URLParam(r, "id"), service.LabResultInput{
		Title:    req.Title,
		Summary:  req.Summary,
		Findings: req.Findings,
	})
	if err != nil {
		h.fail(w, r, err, "Failed to submit lab result")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListAccessRequests — GET /api/v1/evidence/{id}/requests.
func (h *APIHandler) ListAccessRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.requests.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch access requests")
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// CreateAccessRequest — POST /api/v1/evidence/{id}/requests.
func (h *APIHandler) CreateAccessRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req accessRequestCreate
	if !h.decodeJSON(w, r, &req) {
		return
	}

	ar, err := h.requests.Create(r.Context(), p, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, r, err, "Failed to create access request")
		return
	}
	writeJSON(w, http.StatusCreated, ar)
}

// ReviewAccessRequest — PUT /api/v1/evidence/{id}/requests/{requestId}.
func (h *APIHandler) ReviewAccessRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req accessRequestReview
	if !h.decodeJSON(w, r, &req) {
		return
	}

	ar, err := h.requests.Review(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "requestId"), req.Status, req.notes())
	if err != nil {
		h.fail(w, r, err, "Failed to review access request")
		return
	}
	writeJSON(w, http.StatusOK, ar)
}
