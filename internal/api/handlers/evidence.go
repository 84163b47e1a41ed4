// evidence.go — обработчики /api/v1/evidence: регистрация, файлы,
// QR-код, отчёт о цепочке хранения, срок хранения и видимость.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/blockevidence/internal/api/errors"
	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/service"
)

// uploadFieldName — имя поля multipart с файлом.
const uploadFieldName = "file"

type createEvidenceRequest struct {
	CaseID         string   `json:"caseId"`
	CrimeBoxID     string   `json:"crimeBoxId"`
	Type           string   `json:"type" validate:"max=32"`
	Description    string   `json:"description" validate:"max=5000"`
	Location       string   `json:"location" validate:"max=500"`
	CollectionDate string   `json:"collectionDate"`
	Status         string   `json:"status" validate:"max=32"`
	Tags           []string `json:"tags" validate:"max=50,dive,max=64"`
}

type retentionRequest struct {
	RetentionDeadline null.String `json:"retentionDeadline"`
	RetentionPolicy   null.String `json:"retentionPolicy" validate:"omitempty,max=500"`
}

type allowedRolesRequest struct {
	AllowedRoles []string `json:"allowedRoles" validate:"max=10"`
}

// evidenceListParams — параметры фильтра списка улик.
type evidenceListParams struct {
	CaseID *string
	Status *string
	Type   *string
}

type evidenceResponse struct {
	Evidence *model.Evidence `json:"evidence"`
}

type retentionResponse struct {
	Success  bool            `json:"success"`
	Evidence *model.Evidence `json:"evidence"`
}

type allowedRolesResponse struct {
	AllowedRoles []string `json:"allowedRoles"`
}

type setAllowedRolesResponse struct {
	Success      bool     `json:"success"`
	AllowedRoles []string `json:"allowedRoles"`
}

type qrResponse struct {
	QRDataURL string `json:"qrDataUrl"`
	VerifyURL string `json:"verifyUrl"`
	Hash      string `json:"hash"`
}

// ListEvidence — GET /api/v1/evidence?caseId=&status=&type=.
func (h *APIHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var params evidenceListParams
	query := r.URL.Query()
	for name, dest := range map[string]**string{
		"caseId": &params.CaseID,
		"status": &params.Status,
		"type":   &params.Type,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
			apierrors.ValidationDetails(w, "Invalid query parameter", err.Error())
			return
		}
	}

	if params.CaseID != nil {
		if _, err := uuid.Parse(*params.CaseID); err != nil {
			apierrors.ValidationError(w, "Invalid caseId")
			return
		}
	}

	items, err := h.evidence.List(r.Context(), p, model.EvidenceFilter{
		CaseID: deref(params.CaseID),
		Status: deref(params.Status),
		Type:   deref(params.Type),
	})
	if err != nil {
		h.fail(w, r, err, "Failed to fetch evidence")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateEvidence — POST /api/v1/evidence.
func (h *APIHandler) CreateEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createEvidenceRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	var collected time.Time
	if strings.TrimSpace(req.CollectionDate) != "" {
		var err error
		if collected, err = parseTime(req.CollectionDate); err != nil {
			apierrors.ValidationError(w, "Invalid collection date")
			return
		}
	}

	e, err := h.evidence.Create(r.Context(), p, service.CreateEvidenceInput{
		CaseID:         req.CaseID,
		CrimeBoxID:     req.CrimeBoxID,
		Type:           req.Type,
		Description:    req.Description,
		Location:       req.Location,
		CollectionDate: collected,
		Status:         req.Status,
		Tags:           req.Tags,
	})
	if err != nil {
		h.fail(w, r, err, "Failed to register evidence")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetEvidence — GET /api/v1/evidence/{id}.
func (h *APIHandler) GetEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	e, err := h.evidence.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch evidence")
		return
	}
	writeJSON(w, http.StatusOK, evidenceResponse{Evidence: e})
}

// UploadEvidenceFile — POST /api/v1/evidence/{id}/files (multipart/form-data, поле file).
// Файл читается потоково, без промежуточной буферизации формы.
func (h *APIHandler) UploadEvidenceFile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Request must be multipart/form-data")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "No file uploaded")
			return
		}
		if err != nil {
			apierrors.ValidationDetails(w, "Invalid multipart body", err.Error())
			return
		}
		if part.FormName() != uploadFieldName || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		f, err := h.evidence.Upload(r.Context(), p, chi.URLParam(r, "id"), service.UploadInput{
			Reader:   part,
			FileName: part.FileName(),
			MimeType: part.Header.Get("Content-Type"),
		})
		_ = part.Close()
		if err != nil {
			h.fail(w, r, err, "Failed to upload file")
			return
		}
		writeJSON(w, http.StatusCreated, f)
		return
	}
}

// DownloadEvidenceFile — GET /api/v1/evidence/{id}/files/{fileId}/download.
func (h *APIHandler) DownloadEvidenceFile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	meta, file, err := h.evidence.OpenFile(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "fileId"))
	if err != nil {
		h.fail(w, r, err, "Failed to download file")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.FileName}))
	w.Header().Set("X-Checksum-SHA256", meta.SHA256Hash)
	http.ServeContent(w, r, meta.FileName, meta.UploadedAt, file)
}

// EvidenceQR — GET /api/v1/evidence/{id}/qr[?format=png].
func (h *APIHandler) EvidenceQR(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	qr, err := h.evidence.QR(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to generate QR code")
		return
	}

	if r.URL.Query().Get("format") == "png" {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(qr.PNG)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(qr.PNG)
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{QRDataURL: qr.DataURL, VerifyURL: qr.VerifyURL, Hash: qr.Hash})
}

// CustodyReport — GET /api/v1/evidence/{id}/custody-report (PDF).
func (h *APIHandler) CustodyReport(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	pdf, err := h.evidence.CustodyReport(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, err, "Failed to generate custody report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="custody-report-%s.pdf"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// SetRetention — PUT /api/v1/evidence/{id}/retention.
// Отсутствующее или null поле очищает значение.
func (h *APIHandler) SetRetention(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req retentionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	var deadline null.Time
	if s := strings.TrimSpace(req.RetentionDeadline.ValueOrZero()); s != "" {
		t, err := parseTime(s)
		if err != nil {
			apierrors.ValidationError(w, "Invalid retention deadline")
			return
		}
		deadline = null.TimeFrom(t)
	}

	e, err := h.evidence.SetRetention(r.Context(), p, chi.URLParam(r, "id"), deadline, req.RetentionPolicy)
	if err != nil {
		h.fail(w, r, err, "Failed to update retention")
		return
	}
	writeJSON(w, http.StatusOK, retentionResponse{Success: true, Evidence: e})
}

// GetAllowedRoles — GET /api/v1/evidence/{id}/rbac.
func (h *APIHandler) GetAllowedRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	roles, err := h.evidence.AllowedRoles(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch allowed roles")
		return
	}
	writeJSON(w, http.StatusOK, allowedRolesResponse{AllowedRoles: roles})
}

// SetAllowedRoles — PUT /api/v1/evidence/{id}/rbac. null снимает ограничение.
func (h *APIHandler) SetAllowedRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req allowedRolesRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	roles, err := h.evidence.SetAllowedRoles(r.Context(), p, chi.URLParam(r, "id"), req.AllowedRoles)
	if err != nil {
		h.fail(w, r, err, "Failed to update allowed roles")
		return
	}
	writeJSON(w, http.StatusOK, setAllowedRolesResponse{Success: true, AllowedRoles: roles})
}

// parseTime принимает RFC 3339 или дату YYYY-MM-DD.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
