// custody.go — обработчики /api/v1/custody: передача хранения улики.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type transferRequest struct {
	ToUserID string `json:"toUserId"`
	Reason   string `json:"reason" validate:"max=2000"`
}

// RequestTransfer — POST /api/v1/custody/evidence/{id}/transfer.
func (h *APIHandler) RequestTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	ev, err := h.custody.RequestTransfer(r.Context(), p, chi.URLParam(r, "id"), req.ToUserID, req.Reason)
	if err != nil {
		h.fail(w, r, err, "Failed to request transfer")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// ListPendingTransfers — GET /api/v1/custody/pending.
func (h *APIHandler) ListPendingTransfers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	events, err := h.custody.ListPending(r.Context(), p)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch pending transfers")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// AcceptTransfer — PUT /api/v1/custody/events/{eventId}/accept.
func (h *APIHandler) AcceptTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ev, err := h.custody.Accept(r.Context(), p, chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err, "Failed to accept transfer")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// RejectTransfer — PUT /api/v1/custody/events/{eventId}/reject.
func (h *APIHandler) RejectTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	ev, err := h.custody.Reject(r.Context(), p, chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err, "Failed to reject transfer")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
