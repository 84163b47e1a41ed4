// cases.go — обработчики /api/v1/cases и /api/v1/crime-boxes.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/guregu/null/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/service"
)

type createCaseRequest struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=5000"`
	Status      string `json:"status" validate:"max=32"`
}

type linkCrimeBoxRequest struct {
	CrimeBoxID string `json:"crimeBoxId"`
}

type crimeBoxRequest struct {
	Name   string `json:"name" validate:"max=200"`
	CaseID string `json:"caseId"`
}

type joinCrimeBoxRequest struct {
	Key string `json:"key" validate:"max=200"`
}

type linkCrimeBoxResponse struct {
	Success  bool                  `json:"success"`
	CrimeBox model.CrimeBoxSummary `json:"crimeBox"`
}

// createdCrimeBoxResponse — единственный ответ, содержащий секреты crime box.
type createdCrimeBoxResponse struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	CaseRefID  null.String `json:"caseRefId"`
	CreatedAt  time.Time   `json:"createdAt"`
	PrivateKey string      `json:"privateKey"`
	PublicKey  string      `json:"publicKey"`
}

type joinCrimeBoxResponse struct {
	CrimeBox    model.CrimeBoxSummary `json:"crimeBox"`
	AccessLevel string                `json:"accessLevel"`
}

// ListCases — GET /api/v1/cases.
func (h *APIHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.cases.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch cases")
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

// CreateCase — POST /api/v1/cases.
func (h *APIHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createCaseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	c, err := h.cases.Create(r.Context(), p, service.CreateCaseInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(w, r, err, "Failed to create case")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GetCase — GET /api/v1/cases/{id}.
func (h *APIHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.cases.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch case")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateCase — PUT /api/v1/cases/{id}. Отсутствующее поле не меняется,
// null в description очищает описание.
func (h *APIHandler) UpdateCase(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var upd model.CaseUpdate
	if !h.decodeJSON(w, r, &upd) {
		return
	}

	c, err := h.cases.Update(r.Context(), p, chi.URLParam(r, "id"), upd)
	if err != nil {
		h.fail(w, r, err, "Failed to update case")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// LinkCrimeBox — POST /api/v1/cases/{id}/boxes.
func (h *APIHandler) LinkCrimeBox(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req linkCrimeBoxRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	box, err := h.cases.LinkCrimeBox(r.Context(), p, chi.URLParam(r, "id"), req.CrimeBoxID)
	if err != nil {
		h.fail(w, r, err, "Failed to link crime box")
		return
	}
	writeJSON(w, http.StatusOK, linkCrimeBoxResponse{Success: true, CrimeBox: box.Summary()})
}

// ListCrimeBoxes — GET /api/v1/crime-boxes.
func (h *APIHandler) ListCrimeBoxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := h.cases.ListCrimeBoxes(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch crime boxes")
		return
	}
	writeJSON(w, http.StatusOK, boxes)
}

// CreateCrimeBox — POST /api/v1/crime-boxes.
func (h *APIHandler) CreateCrimeBox(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req crimeBoxRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	box, err := h.cases.CreateCrimeBox(r.Context(), p, req.Name, req.CaseID)
	if err != nil {
		h.fail(w, r, err, "Failed to create crime box")
		return
	}
	writeJSON(w, http.StatusCreated, createdCrimeBoxResponse{
		ID:         box.ID,
		Name:       box.Name,
		CaseRefID:  box.CaseRefID,
		CreatedAt:  box.CreatedAt,
		PrivateKey: box.PrivateKey,
		PublicKey:  box.PublicKey,
	})
}

// JoinCrimeBox — POST /api/v1/crime-boxes/join.
func (h *APIHandler) JoinCrimeBox(w http.ResponseWriter, r *http.Request) {
	var req joinCrimeBoxRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.cases.JoinCrimeBox(r.Context(), req.Key)
	if err != nil {
		h.fail(w, r, err, "Failed to join crime box")
		return
	}
	writeJSON(w, http.StatusOK, joinCrimeBoxResponse{CrimeBox: res.CrimeBox, AccessLevel: res.AccessLevel})
}
