package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/guregu/null/v5"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// --- Инфраструктура ---

// fakeTx выполняет функцию без реальной транзакции.
type fakeTx struct {
	calls int
}

func (f *fakeTx) RunInTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	f.calls++
	return fn(nil)
}

// recordingDispatcher запоминает отправленные пакеты уведомлений.
type recordingDispatcher struct {
	sent []model.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ pgx.Tx, batch []model.Notification) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, batch...)
	return nil
}

// testRepos — набор моков с пустым поведением по умолчанию.
type testRepos struct {
	users         *mockUserRepo
	cases         *mockCaseRepo
	boxes         *mockCrimeBoxRepo
	evidence      *mockEvidenceRepo
	files         *mockFileRepo
	custody       *mockCustodyRepo
	comments      *mockCommentRepo
	labs          *mockLabResultRepo
	requests      *mockAccessRequestRepo
	notifications *mockNotificationRepo
	activity      *mockActivityRepo
	stats         *mockStatsRepo
}

func newTestRepos() *testRepos {
	return &testRepos{
		users:         &mockUserRepo{},
		cases:         &mockCaseRepo{},
		boxes:         &mockCrimeBoxRepo{},
		evidence:      &mockEvidenceRepo{},
		files:         &mockFileRepo{},
		custody:       &mockCustodyRepo{},
		comments:      &mockCommentRepo{},
		labs:          &mockLabResultRepo{},
		requests:      &mockAccessRequestRepo{},
		notifications: &mockNotificationRepo{},
		activity:      &mockActivityRepo{},
		stats:         &mockStatsRepo{},
	}
}

func (t *testRepos) repositories() *repository.Repositories {
	return &repository.Repositories{
		Users:          t.users,
		Cases:          t.cases,
		CrimeBoxes:     t.boxes,
		Evidence:       t.evidence,
		Files:          t.files,
		Custody:        t.custody,
		Comments:       t.comments,
		LabResults:     t.labs,
		AccessRequests: t.requests,
		Notifications:  t.notifications,
		Activity:       t.activity,
		Stats:          t.stats,
	}
}

// store возвращает Store, в котором и чтение, и транзакции идут в моки.
func (t *testRepos) store() *Store {
	repos := t.repositories()
	return NewStoreWith(repos, &fakeTx{}, func(repository.DBTX) *repository.Repositories { return repos })
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Участники тестовых сценариев.
var (
	officer = model.Principal{ID: "11111111-1111-1111-1111-111111111111", Username: "sconnor", Role: "officer"}
	head    = model.Principal{ID: "22222222-2222-2222-2222-222222222222", Username: "jsmith", Role: "head_officer"}
	lawyer  = model.Principal{ID: "33333333-3333-3333-3333-333333333333", Username: "sgoodman", Role: "lawyer"}
	judge   = model.Principal{ID: "44444444-4444-4444-4444-444444444444", Username: "jdredd", Role: "judge"}
)

// --- Users ---

type mockUserRepo struct {
	createFn        func(ctx context.Context, u *model.User) error
	getByIDFn       func(ctx context.Context, id string) (*model.User, error)
	getByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	listFn          func(ctx context.Context) ([]*model.User, error)
	listByRolesFn   func(ctx context.Context, roles []string) ([]*model.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	u.CreatedAt = time.Now()
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserRepo) ListByRoles(ctx context.Context, roles []string) ([]*model.User, error) {
	if m.listByRolesFn != nil {
		return m.listByRolesFn(ctx, roles)
	}
	return nil, nil
}

// --- Cases ---

type mockCaseRepo struct {
	listFn        func(ctx context.Context) ([]*model.Case, error)
	createFn      func(ctx context.Context, c *model.Case) error
	getByIDFn     func(ctx context.Context, id string) (*model.Case, error)
	updateFn      func(ctx context.Context, id string, upd model.CaseUpdate) error
	findByTitleFn func(ctx context.Context, title string) (*model.Case, error)
}

func (m *mockCaseRepo) List(ctx context.Context) ([]*model.Case, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCaseRepo) Create(ctx context.Context, c *model.Case) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockCaseRepo) GetByID(ctx context.Context, id string) (*model.Case, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCaseRepo) Update(ctx context.Context, id string, upd model.CaseUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return nil
}

func (m *mockCaseRepo) FindByTitle(ctx context.Context, title string) (*model.Case, error) {
	if m.findByTitleFn != nil {
		return m.findByTitleFn(ctx, title)
	}
	return nil, repository.ErrNotFound
}

// --- Crime boxes ---

type mockCrimeBoxRepo struct {
	createFn     func(ctx context.Context, b *model.CrimeBox) error
	getByIDFn    func(ctx context.Context, id string) (*model.CrimeBox, error)
	getByKeyFn   func(ctx context.Context, key string) (*model.CrimeBox, error)
	listFn       func(ctx context.Context) ([]*model.CrimeBox, error)
	linkToCaseFn func(ctx context.Context, boxID, caseID string) error
}

func (m *mockCrimeBoxRepo) Create(ctx context.Context, b *model.CrimeBox) error {
	if m.createFn != nil {
		return m.createFn(ctx, b)
	}
	return nil
}

func (m *mockCrimeBoxRepo) GetByID(ctx context.Context, id string) (*model.CrimeBox, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCrimeBoxRepo) GetByKey(ctx context.Context, key string) (*model.CrimeBox, error) {
	if m.getByKeyFn != nil {
		return m.getByKeyFn(ctx, key)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCrimeBoxRepo) List(ctx context.Context) ([]*model.CrimeBox, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCrimeBoxRepo) LinkToCase(ctx context.Context, boxID, caseID string) error {
	if m.linkToCaseFn != nil {
		return m.linkToCaseFn(ctx, boxID, caseID)
	}
	return nil
}

func (m *mockCrimeBoxRepo) FindByName(_ context.Context, _ string) (*model.CrimeBox, error) {
	return nil, repository.ErrNotFound
}

// --- Evidence ---

type mockEvidenceRepo struct {
	createFn           func(ctx context.Context, e *model.Evidence) error
	getByIDFn          func(ctx context.Context, id string) (*model.Evidence, error)
	listFn             func(ctx context.Context, filter model.EvidenceFilter) ([]*model.Evidence, error)
	setRetentionFn     func(ctx context.Context, id string, deadline null.Time, policy null.String) error
	setAllowedRolesFn  func(ctx context.Context, id string, roles []string) error
	setCustodianFn     func(ctx context.Context, id, userID string) error
	setFileHashFn      func(ctx context.Context, id, hash string) error
	findByHashFn       func(ctx context.Context, hash string) (*model.Evidence, error)
	listRetentionDueFn func(ctx context.Context, now time.Time, limit int) ([]*model.Evidence, error)
	markNotifiedFn     func(ctx context.Context, id string, deadline time.Time) (bool, error)
}

func (m *mockEvidenceRepo) Create(ctx context.Context, e *model.Evidence) error {
	if m.createFn != nil {
		return m.createFn(ctx, e)
	}
	return nil
}

func (m *mockEvidenceRepo) GetByID(ctx context.Context, id string) (*model.Evidence, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockEvidenceRepo) List(ctx context.Context, filter model.EvidenceFilter) ([]*model.Evidence, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockEvidenceRepo) SetRetention(ctx context.Context, id string, deadline null.Time, policy null.String) error {
	if m.setRetentionFn != nil {
		return m.setRetentionFn(ctx, id, deadline, policy)
	}
	return nil
}

func (m *mockEvidenceRepo) SetAllowedRoles(ctx context.Context, id string, roles []string) error {
	if m.setAllowedRolesFn != nil {
		return m.setAllowedRolesFn(ctx, id, roles)
	}
	return nil
}

func (m *mockEvidenceRepo) SetCustodian(ctx context.Context, id, userID string) error {
	if m.setCustodianFn != nil {
		return m.setCustodianFn(ctx, id, userID)
	}
	return nil
}

func (m *mockEvidenceRepo) SetFileHashIfEmpty(ctx context.Context, id, hash string) error {
	if m.setFileHashFn != nil {
		return m.setFileHashFn(ctx, id, hash)
	}
	return nil
}

func (m *mockEvidenceRepo) FindByHash(ctx context.Context, hash string) (*model.Evidence, error) {
	if m.findByHashFn != nil {
		return m.findByHashFn(ctx, hash)
	}
	return nil, repository.ErrNotFound
}

func (m *mockEvidenceRepo) ListRetentionDue(ctx context.Context, now time.Time, limit int) ([]*model.Evidence, error) {
	if m.listRetentionDueFn != nil {
		return m.listRetentionDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockEvidenceRepo) MarkRetentionNotified(ctx context.Context, id string, deadline time.Time) (bool, error) {
	if m.markNotifiedFn != nil {
		return m.markNotifiedFn(ctx, id, deadline)
	}
	return true, nil
}

func (m *mockEvidenceRepo) DeleteNotInCase(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

// --- Evidence files ---

type mockFileRepo struct {
	createFn         func(ctx context.Context, f *model.EvidenceFile) error
	listByEvidenceFn func(ctx context.Context, evidenceID string) ([]*model.EvidenceFile, error)
	getByIDFn        func(ctx context.Context, evidenceID, fileID string) (*model.EvidenceFile, error)
}

func (m *mockFileRepo) Create(ctx context.Context, f *model.EvidenceFile) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	return nil
}

func (m *mockFileRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.EvidenceFile, error) {
	if m.listByEvidenceFn != nil {
		return m.listByEvidenceFn(ctx, evidenceID)
	}
	return nil, nil
}

func (m *mockFileRepo) GetByID(ctx context.Context, evidenceID, fileID string) (*model.EvidenceFile, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, evidenceID, fileID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) StoragePathsNotInCase(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

// --- Custody ---

type mockCustodyRepo struct {
	createFn         func(ctx context.Context, ev *model.CustodyEvent) error
	getByIDFn        func(ctx context.Context, id string) (*model.CustodyEvent, error)
	listByEvidenceFn func(ctx context.Context, evidenceID string) ([]*model.CustodyEvent, error)
	listPendingFn    func(ctx context.Context, userID string) ([]*model.CustodyEvent, error)
	resolveFn        func(ctx context.Context, id, status string) (*model.CustodyEvent, error)
}

func (m *mockCustodyRepo) Create(ctx context.Context, ev *model.CustodyEvent) error {
	if m.createFn != nil {
		return m.createFn(ctx, ev)
	}
	return nil
}

func (m *mockCustodyRepo) GetByID(ctx context.Context, id string) (*model.CustodyEvent, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCustodyRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.CustodyEvent, error) {
	if m.listByEvidenceFn != nil {
		return m.listByEvidenceFn(ctx, evidenceID)
	}
	return nil, nil
}

func (m *mockCustodyRepo) ListPendingForUser(ctx context.Context, userID string) ([]*model.CustodyEvent, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCustodyRepo) Resolve(ctx context.Context, id, status string) (*model.CustodyEvent, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id, status)
	}
	return nil, repository.ErrConflict
}

// --- Comments ---

type mockCommentRepo struct {
	listFn    func(ctx context.Context, evidenceID string) ([]*model.Comment, error)
	createFn  func(ctx context.Context, c *model.Comment) error
	getByIDFn func(ctx context.Context, id string) (*model.Comment, error)
	deleteFn  func(ctx context.Context, id string) error
}

func (m *mockCommentRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.Comment, error) {
	if m.listFn != nil {
		return m.listFn(ctx, evidenceID)
	}
	return nil, nil
}

func (m *mockCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockCommentRepo) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockCommentRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// --- Lab results ---

type mockLabResultRepo struct {
	listFn   func(ctx context.Context, evidenceID string) ([]*model.LabResult, error)
	createFn func(ctx context.Context, lr *model.LabResult) error
}

func (m *mockLabResultRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.LabResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, evidenceID)
	}
	return nil, nil
}

func (m *mockLabResultRepo) Create(ctx context.Context, lr *model.LabResult) error {
	if m.createFn != nil {
		return m.createFn(ctx, lr)
	}
	return nil
}

// --- Access requests ---

type mockAccessRequestRepo struct {
	listFn        func(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error)
	createFn      func(ctx context.Context, ar *model.AccessRequest) error
	getByIDFn     func(ctx context.Context, evidenceID, id string) (*model.AccessRequest, error)
	reviewFn      func(ctx context.Context, id, status, reviewerID string, notes null.String) error
	hasApprovedFn func(ctx context.Context, evidenceID, userID string) (bool, error)
}

func (m *mockAccessRequestRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error) {
	if m.listFn != nil {
		return m.listFn(ctx, evidenceID)
	}
	return nil, nil
}

func (m *mockAccessRequestRepo) Create(ctx context.Context, ar *model.AccessRequest) error {
	if m.createFn != nil {
		return m.createFn(ctx, ar)
	}
	return nil
}

func (m *mockAccessRequestRepo) GetByID(ctx context.Context, evidenceID, id string) (*model.AccessRequest, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, evidenceID, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockAccessRequestRepo) Review(ctx context.Context, id, status, reviewerID string, notes null.String) error {
	if m.reviewFn != nil {
		return m.reviewFn(ctx, id, status, reviewerID, notes)
	}
	return nil
}

func (m *mockAccessRequestRepo) HasApproved(ctx context.Context, evidenceID, userID string) (bool, error) {
	if m.hasApprovedFn != nil {
		return m.hasApprovedFn(ctx, evidenceID, userID)
	}
	return false, nil
}

// --- Notifications ---

type mockNotificationRepo struct {
	listFn        func(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	countUnreadFn func(ctx context.Context, userID string) (int, error)
	markAllFn     func(ctx context.Context, userID string) error
	markReadFn    func(ctx context.Context, id, userID string) error
}

func (m *mockNotificationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	if m.countUnreadFn != nil {
		return m.countUnreadFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockNotificationRepo) Insert(_ context.Context, _ *model.Notification) (bool, error) {
	return true, nil
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID string) error {
	if m.markAllFn != nil {
		return m.markAllFn(ctx, userID)
	}
	return nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, id, userID)
	}
	return nil
}

// --- Activity ---

// mockActivityRepo запоминает записи журнала.
type mockActivityRepo struct {
	created []*model.ActivityLog
	listFn  func(ctx context.Context, limit, offset int) ([]*model.ActivityLog, error)
	countFn func(ctx context.Context) (int, error)
}

func (m *mockActivityRepo) Create(_ context.Context, a *model.ActivityLog) error {
	m.created = append(m.created, a)
	return nil
}

func (m *mockActivityRepo) List(ctx context.Context, limit, offset int) ([]*model.ActivityLog, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockActivityRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

// --- Stats ---

type mockStatsRepo struct {
	totalsFn       func(ctx context.Context, userID string) (*repository.Totals, error)
	byStatusFn     func(ctx context.Context) ([]model.CountByKey, error)
	byTypeFn       func(ctx context.Context) ([]model.CountByKey, error)
	createdSinceFn func(ctx context.Context, since time.Time) ([]model.CountByKey, error)
}

func (m *mockStatsRepo) Totals(ctx context.Context, userID string) (*repository.Totals, error) {
	if m.totalsFn != nil {
		return m.totalsFn(ctx, userID)
	}
	return &repository.Totals{}, nil
}

func (m *mockStatsRepo) EvidenceByStatus(ctx context.Context) ([]model.CountByKey, error) {
	if m.byStatusFn != nil {
		return m.byStatusFn(ctx)
	}
	return nil, nil
}

func (m *mockStatsRepo) EvidenceByType(ctx context.Context) ([]model.CountByKey, error) {
	if m.byTypeFn != nil {
		return m.byTypeFn(ctx)
	}
	return nil, nil
}

func (m *mockStatsRepo) EvidenceCreatedSince(ctx context.Context, since time.Time) ([]model.CountByKey, error) {
	if m.createdSinceFn != nil {
		return m.createdSinceFn(ctx, since)
	}
	return nil, nil
}
