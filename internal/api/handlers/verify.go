// verify.go — публичная верификация улики по хешу. Аутентификация не требуется.
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/blockevidence/internal/service"
)

type verifiedResponse struct {
	Verified bool                      `json:"verified"`
	Evidence *service.VerifiedEvidence `json:"evidence"`
}

type notVerifiedResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// VerifyHash — GET /api/v1/verify/{hash}.
func (h *APIHandler) VerifyHash(w http.ResponseWriter, r *http.Request) {
	ev, err := h.verify.Verify(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			msg, _ := service.PublicMessage(err)
			writeJSON(w, http.StatusNotFound, notVerifiedResponse{Verified: false, Message: msg})
			return
		}
		h.fail(w, r, err, "Verification failed")
		return
	}
	writeJSON(w, http.StatusOK, verifiedResponse{Verified: true, Evidence: ev})
}
