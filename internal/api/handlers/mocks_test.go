package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/guregu/null/v5"

	"github.com/bigkaa/blockevidence/internal/api/middleware"
	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/service"
)

var (
	officer = model.Principal{ID: "11111111-1111-4111-8111-111111111111", Username: "sconnor", Role: rbac.RoleOfficer}
	head    = model.Principal{ID: "22222222-2222-4222-8222-222222222222", Username: "jsmith", Role: rbac.RoleHeadOfficer}
	lawyer  = model.Principal{ID: "33333333-3333-4333-8333-333333333333", Username: "sgoodman", Role: rbac.RoleLawyer}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandler создаёт APIHandler с переданными моками.
func newTestHandler(svc Services) *APIHandler {
	return NewAPIHandler(NewHealthHandler(nil, nil, nil), svc, testLogger())
}

// newRequest создаёт запрос с JSON-телом, principal и параметрами пути chi.
func newRequest(method, target, body string, p *model.Principal, params ...string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if p != nil {
		ctx = middleware.WithPrincipal(ctx, *p)
	}
	return req.WithContext(ctx)
}

// decodeBody разбирает JSON-ответ.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	return v
}

func svcErr(kind error, msg string) error {
	return &service.Error{Kind: kind, Message: msg}
}

// --- Моки сервисов ---

type mockAuthService struct {
	registerFn  func(ctx context.Context, in service.RegisterInput) (*model.User, error)
	loginFn     func(ctx context.Context, username, password string) (*service.LoginResult, error)
	meFn        func(ctx context.Context, p model.Principal) (*model.User, error)
	listUsersFn func(ctx context.Context) ([]model.UserSummary, error)
}

func (m *mockAuthService) Register(ctx context.Context, in service.RegisterInput) (*model.User, error) {
	return m.registerFn(ctx, in)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*service.LoginResult, error) {
	return m.loginFn(ctx, username, password)
}

func (m *mockAuthService) Me(ctx context.Context, p model.Principal) (*model.User, error) {
	return m.meFn(ctx, p)
}

func (m *mockAuthService) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	return m.listUsersFn(ctx)
}

type mockCaseService struct {
	listFn      func(ctx context.Context) ([]*model.Case, error)
	getFn       func(ctx context.Context, id string) (*model.Case, error)
	createFn    func(ctx context.Context, p model.Principal, in service.CreateCaseInput) (*model.Case, error)
	updateFn    func(ctx context.Context, p model.Principal, id string, upd model.CaseUpdate) (*model.Case, error)
	linkFn      func(ctx context.Context, p model.Principal, caseID, boxID string) (*model.CrimeBox, error)
	createBoxFn func(ctx context.Context, p model.Principal, name, caseID string) (*model.CrimeBox, error)
	listBoxesFn func(ctx context.Context) ([]model.CrimeBoxSummary, error)
	joinFn      func(ctx context.Context, key string) (*service.JoinResult, error)
}

func (m *mockCaseService) List(ctx context.Context) ([]*model.Case, error) { return m.listFn(ctx) }

func (m *mockCaseService) Get(ctx context.Context, id string) (*model.Case, error) {
	return m.getFn(ctx, id)
}

func (m *mockCaseService) Create(ctx context.Context, p model.Principal, in service.CreateCaseInput) (*model.Case, error) {
	return m.createFn(ctx, p, in)
}

func (m *mockCaseService) Update(ctx context.Context, p model.Principal, id string, upd model.CaseUpdate) (*model.Case, error) {
	return m.updateFn(ctx, p, id, upd)
}

func (m *mockCaseService) LinkCrimeBox(ctx context.Context, p model.Principal, caseID, boxID string) (*model.CrimeBox, error) {
	return m.linkFn(ctx, p, caseID, boxID)
}

func (m *mockCaseService) CreateCrimeBox(ctx context.Context, p model.Principal, name, caseID string) (*model.CrimeBox, error) {
	return m.createBoxFn(ctx, p, name, caseID)
}

func (m *mockCaseService) ListCrimeBoxes(ctx context.Context) ([]model.CrimeBoxSummary, error) {
	return m.listBoxesFn(ctx)
}

func (m *mockCaseService) JoinCrimeBox(ctx context.Context, key string) (*service.JoinResult, error) {
	return m.joinFn(ctx, key)
}

type mockEvidenceService struct {
	createFn          func(ctx context.Context, p model.Principal, in service.CreateEvidenceInput) (*model.Evidence, error)
	listFn            func(ctx context.Context, p model.Principal, filter model.EvidenceFilter) ([]*model.Evidence, error)
	getFn             func(ctx context.Context, p model.Principal, id string) (*model.Evidence, error)
	uploadFn          func(ctx context.Context, p model.Principal, id string, in service.UploadInput) (*model.EvidenceFile, error)
	openFileFn        func(ctx context.Context, p model.Principal, id, fileID string) (*model.EvidenceFile, *os.File, error)
	setRetentionFn    func(ctx context.Context, p model.Principal, id string, deadline null.Time, policy null.String) (*model.Evidence, error)
	allowedRolesFn    func(ctx context.Context, p model.Principal, id string) ([]string, error)
	setAllowedRolesFn func(ctx context.Context, p model.Principal, id string, roles []string) ([]string, error)
	qrFn              func(ctx context.Context, p model.Principal, id string) (*service.QRResult, error)
	reportFn          func(ctx context.Context, p model.Principal, id string) ([]byte, error)
}

func (m *mockEvidenceService) Create(ctx context.Context, p model.Principal, in service.CreateEvidenceInput) (*model.Evidence, error) {
	return m.createFn(ctx, p, in)
}

func (m *mockEvidenceService) List(ctx context.Context, p model.Principal, filter model.EvidenceFilter) ([]*model.Evidence, error) {
	return m.listFn(ctx, p, filter)
}

func (m *mockEvidenceService) Get(ctx context.Context, p model.Principal, id string) (*model.Evidence, error) {
	return m.getFn(ctx, p, id)
}

func (m *mockEvidenceService) Upload(ctx context.Context, p model.Principal, id string, in service.UploadInput) (*model.EvidenceFile, error) {
	return m.uploadFn(ctx, p, id, in)
}

func (m *mockEvidenceService) OpenFile(ctx context.Context, p model.Principal, id, fileID string) (*model.EvidenceFile, *os.File, error) {
	return m.openFileFn(ctx, p, id, fileID)
}

func (m *mockEvidenceService) SetRetention(ctx context.Context, p model.Principal, id string, deadline null.Time, policy null.String) (*model.Evidence, error) {
	return m.setRetentionFn(ctx, p, id, deadline, policy)
}

func (m *mockEvidenceService) AllowedRoles(ctx context.Context, p model.Principal, id string) ([]string, error) {
	return m.allowedRolesFn(ctx, p, id)
}

func (m *mockEvidenceService) SetAllowedRoles(ctx context.Context, p model.Principal, id string, roles []string) ([]string, error) {
	return m.setAllowedRolesFn(ctx, p, id, roles)
}

func (m *mockEvidenceService) QR(ctx context.Context, p model.Principal, id string) (*service.QRResult, error) {
	return m.qrFn(ctx, p, id)
}

func (m *mockEvidenceService) CustodyReport(ctx context.Context, p model.Principal, id string) ([]byte, error) {
	return m.reportFn(ctx, p, id)
}

type mockCommentService struct {
	listCommentsFn func(ctx context.Context, evidenceID string) ([]*model.Comment, error)
	addCommentFn   func(ctx context.Context, p model.Principal, evidenceID, content string) (*model.Comment, error)
	deleteFn       func(ctx context.Context, p model.Principal, evidenceID, commentID string) error
	listLabsFn     func(ctx context.Context, evidenceID string) ([]*model.LabResult, error)
	submitLabFn    func(ctx context.Context, p model.Principal, evidenceID string, in service.LabResultInput) (*model.LabResult, error)
}

func (m *mockCommentService) ListComments(ctx context.Context, evidenceID string) ([]*model.Comment, error) {
	return m.listCommentsFn(ctx, evidenceID)
}

func (m *mockCommentService) AddComment(ctx context.Context, p model.Principal, evidenceID, content string) (*model.Comment, error) {
	return m.addCommentFn(ctx, p, evidenceID, content)
}

func (m *mockCommentService) DeleteComment(ctx context.Context, p model.Principal, evidenceID, commentID string) error {
	return m.deleteFn(ctx, p, evidenceID, commentID)
}

func (m *mockCommentService) ListLabResults(ctx context.Context, evidenceID string) ([]*model.LabResult, error) {
	return m.listLabsFn(ctx, evidenceID)
}

func (m *mockCommentService) SubmitLabResult(ctx context.Context, p model.Principal, evidenceID string, in service.LabResultInput) (*model.LabResult, error) {
	return m.submitLabFn(ctx, p, evidenceID, in)
}

type mockAccessRequestService struct {
	listFn   func(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error)
	createFn func(ctx context.Context, p model.Principal, evidenceID, reason string) (*model.AccessRequest, error)
	reviewFn func(ctx context.Context, p model.Principal, evidenceID, requestID, status, notes string) (*model.AccessRequest, error)
}

func (m *mockAccessRequestService) List(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error) {
	return m.listFn(ctx, evidenceID)
}

func (m *mockAccessRequestService) Create(ctx context.Context, p model.Principal, evidenceID, reason string) (*model.AccessRequest, error) {
	return m.createFn(ctx, p, evidenceID, reason)
}

func (m *mockAccessRequestService) Review(ctx context.Context, p model.Principal, evidenceID, requestID, status, notes string) (*model.AccessRequest, error) {
	return m.reviewFn(ctx, p, evidenceID, requestID, status, notes)
}

type mockCustodyService struct {
	requestFn     func(ctx context.Context, p model.Principal, evidenceID, toUserID, reason string) (*model.CustodyEvent, error)
	acceptFn      func(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error)
	rejectFn      func(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error)
	listPendingFn func(ctx context.Context, p model.Principal) ([]*model.CustodyEvent, error)
}

func (m *mockCustodyService) RequestTransfer(ctx context.Context, p model.Principal, evidenceID, toUserID, reason string) (*model.CustodyEvent, error) {
	return m.requestFn(ctx, p, evidenceID, toUserID, reason)
}

func (m *mockCustodyService) Accept(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error) {
	return m.acceptFn(ctx, p, eventID)
}

func (m *mockCustodyService) Reject(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error) {
	return m.rejectFn(ctx, p, eventID)
}

func (m *mockCustodyService) ListPending(ctx context.Context, p model.Principal) ([]*model.CustodyEvent, error) {
	return m.listPendingFn(ctx, p)
}

type mockFeedService struct {
	notificationsFn func(ctx context.Context, p model.Principal) (*service.NotificationList, error)
	markAllFn       func(ctx context.Context, p model.Principal) error
	markFn          func(ctx context.Context, p model.Principal, id string) error
	activityFn      func(ctx context.Context, page, limit int) (*service.ActivityPage, error)
	statsFn         func(ctx context.Context, p model.Principal) (*model.Stats, error)
}

func (m *mockFeedService) Notifications(ctx context.Context, p model.Principal) (*service.NotificationList, error) {
	return m.notificationsFn(ctx, p)
}

func (m *mockFeedService) MarkAllRead(ctx context.Context, p model.Principal) error {
	return m.markAllFn(ctx, p)
}

func (m *mockFeedService) MarkRead(ctx context.Context, p model.Principal, id string) error {
	return m.markFn(ctx, p, id)
}

func (m *mockFeedService) Activity(ctx context.Context, page, limit int) (*service.ActivityPage, error) {
	return m.activityFn(ctx, page, limit)
}

func (m *mockFeedService) Stats(ctx context.Context, p model.Principal) (*model.Stats, error) {
	return m.statsFn(ctx, p)
}

type mockVerifyService struct {
	verifyFn func(ctx context.Context, hash string) (*service.VerifiedEvidence, error)
}

func (m *mockVerifyService) Verify(ctx context.Context, hash string) (*service.VerifiedEvidence, error) {
	return m.verifyFn(ctx, hash)
}
