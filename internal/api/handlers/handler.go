// handler.go — основной обработчик API BlockEvidence.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/guregu/null/v5"

	apierrors "github.com/bigkaa/blockevidence/internal/api/errors"
	"github.com/bigkaa/blockevidence/internal/api/middleware"
	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/service"
)

// maxJSONBody — предельный размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// --- Интерфейсы сервисного слоя ---

// AuthService — учётные записи и вход.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Me(ctx context.Context, p model.Principal) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.UserSummary, error)
}

// CaseService — дела и crime box.
type CaseService interface {
	List(ctx context.Context) ([]*model.Case, error)
	Get(ctx context.Context, id string) (*model.Case, error)
	Create(ctx context.Context, p model.Principal, in service.CreateCaseInput) (*model.Case, error)
	Update(ctx context.Context, p model.Principal, id string, upd model.CaseUpdate) (*model.Case, error)
	LinkCrimeBox(ctx context.Context, p model.Principal, caseID, boxID string) (*model.CrimeBox, error)
	CreateCrimeBox(ctx context.Context, p model.Principal, name, caseID string) (*model.CrimeBox, error)
	ListCrimeBoxes(ctx context.Context) ([]model.CrimeBoxSummary, error)
	JoinCrimeBox(ctx context.Context, key string) (*service.JoinResult, error)
}

// EvidenceService — улики, файлы, срок хранения и видимость.
type EvidenceService interface {
	Create(ctx context.Context, p model.Principal, in service.CreateEvidenceInput) (*model.Evidence, error)
	List(ctx context.Context, p model.Principal, filter model.EvidenceFilter) ([]*model.Evidence, error)
	Get(ctx context.Context, p model.Principal, id string) (*model.Evidence, error)
	Upload(ctx context.Context, p model.Principal, id string, in service.UploadInput) (*model.EvidenceFile, error)
	OpenFile(ctx context.Context, p model.Principal, id, fileID string) (*model.EvidenceFile, *os.File, error)
	SetRetention(ctx context.Context, p model.Principal, id string, deadline null.Time, policy null.String) (*model.Evidence, error)
	AllowedRoles(ctx context.Context, p model.Principal, id string) ([]string, error)
	SetAllowedRoles(ctx context.Context, p model.Principal, id string, roles []string) ([]string, error)
	QR(ctx context.Context, p model.Principal, id string) (*service.QRResult, error)
	CustodyReport(ctx context.Context, p model.Principal, id string) ([]byte, error)
}

// CommentService — комментарии и результаты экспертиз.
type CommentService interface {
	ListComments(ctx context.Context, evidenceID string) ([]*model.Comment, error)
	AddComment(ctx context.Context, p model.Principal, evidenceID, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, p model.Principal, evidenceID, commentID string) error
	ListLabResults(ctx context.Context, evidenceID string) ([]*model.LabResult, error)
	SubmitLabResult(ctx context.Context, p model.Principal, evidenceID string, in service.LabResultInput) (*model.LabResult, error)
}

// AccessRequestService — запросы доступа к уликам.
type AccessRequestService interface {
	List(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error)
	Create(ctx context.Context, p model.Principal, evidenceID, reason string) (*model.AccessRequest, error)
	Review(ctx context.Context, p model.Principal, evidenceID, requestID, status, notes string) (*model.AccessRequest, error)
}

// CustodyService — передача хранения.
type CustodyService interface {
	RequestTransfer(ctx context.Context, p model.Principal, evidenceID, toUserID, reason string) (*model.CustodyEvent, error)
	Accept(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error)
	Reject(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error)
	ListPending(ctx context.Context, p model.Principal) ([]*model.CustodyEvent, error)
}

// FeedService — уведомления, активность, статистика.
type FeedService interface {
	Notifications(ctx context.Context, p model.Principal) (*service.NotificationList, error)
	MarkAllRead(ctx context.Context, p model.Principal) error
	MarkRead(ctx context.Context, p model.Principal, id string) error
	Activity(ctx context.Context, page, limit int) (*service.ActivityPage, error)
	Stats(ctx context.Context, p model.Principal) (*model.Stats, error)
}

// VerifyService — публичная верификация по хешу.
type VerifyService interface {
	Verify(ctx context.Context, hash string) (*service.VerifiedEvidence, error)
}

// Services — зависимости APIHandler.
type Services struct {
	Auth           AuthService
	Cases          CaseService
	Evidence       EvidenceService
	Comments       CommentService
	AccessRequests AccessRequestService
	Custody        CustodyService
	Feed           FeedService
	Verify         VerifyService
}

// APIHandler — основной обработчик API BlockEvidence.
type APIHandler struct {
	health   *HealthHandler
	auth     AuthService
	cases    CaseService
	evidence EvidenceService
	comments CommentService
	requests AccessRequestService
	custody  CustodyService
	feed     FeedService
	verify   VerifyService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:   health,
		auth:     svc.Auth,
		cases:    svc.Cases,
		evidence: svc.Evidence,
		comments: svc.Comments,
		requests: svc.AccessRequests,
		custody:  svc.Custody,
		feed:     svc.Feed,
		verify:   svc.Verify,
		validate: newValidator(),
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — проверка liveness (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — проверка readiness (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// JWKS — открытый ключ подписи (делегируется в HealthHandler).
func (h *APIHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	h.health.JWKS(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// successResponse — {"success": true}.
type successResponse struct {
	Success bool `json:"success"`
}

// newValidator создаёт валидатор DTO с именами полей из json-тегов.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if ns, ok := field.Interface().(null.String); ok && ns.Valid {
			return ns.String
		}
		return nil
	}, null.String{})
	return v
}

// decodeJSON читает JSON-тело в dst и проверяет ограничения DTO.
// При ошибке ответ уже записан и возвращается false.
func (h *APIHandler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationDetails(w, "Invalid request body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		apierrors.ValidationDetails(w, "Invalid request body", validationDetails(err))
		return false
	}
	return true
}

// validationDetails формирует краткое описание нарушенных ограничений.
func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// principal извлекает аутентифицированного пользователя.
// При отсутствии ответ 401 уже записан.
func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Access token required")
	}
	return p, ok
}

// fail записывает ответ для ошибки сервисного слоя.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	apierrors.FromService(w, r, h.logger, err, fallback)
}
