package repository

import (
	"context"
	"fmt"

	"github.com/guregu/null/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// AccessRequestRepository — интерфейс доступа к таблице evidence_access_requests.
type AccessRequestRepository interface {
	// ListByEvidence возвращает запросы доступа к улике (новые первыми).
	ListByEvidence(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error)
	// Create создаёт ожидающий запрос. Уникальный индекс по
	// (evidence_id, requester_id) для pending — ErrConflict при дубликате.
	Create(ctx context.Context, ar *model.AccessRequest) error
	// GetByID возвращает запрос доступа в рамках улики.
	GetByID(ctx context.Context, evidenceID, id string) (*model.AccessRequest, error)
	// Review переводит ожидающий запрос в конечный статус.
	// Запрос уже рассмотрен — ErrConflict.
	Review(ctx context.Context, id, status, reviewerID string, notes null.String) error
	// HasApproved — есть ли у пользователя одобренный запрос к улике.
	HasApproved(ctx context.Context, evidenceID, userID string) (bool, error)
}

type accessRequestRepo struct {
	db DBTX
}

// NewAccessRequestRepository создаёт репозиторий запросов доступа.
func NewAccessRequestRepository(db DBTX) AccessRequestRepository {
	return &accessRequestRepo{db: db}
}

const accessRequestSelect = `
	SELECT ar.id, ar.evidence_id, ar.requester_id, ar.reason, ar.status,
		ar.reviewed_by, ar.review_notes, ar.reviewed_at, ar.created_at,
		rq.username, rq.full_name, rq.role,
		rv.username, rv.full_name, rv.role
	FROM evidence_access_requests ar
	JOIN users rq ON rq.id = ar.requester_id
	LEFT JOIN users rv ON rv.id = ar.reviewed_by`

func scanAccessRequest(row rowScanner) (*model.AccessRequest, error) {
	ar := &model.AccessRequest{}
	var rqUsername, rqFullName, rqRole string
	var rvUsername, rvFullName, rvRole null.String
	err := row.Scan(
		&ar.ID, &ar.EvidenceID, &ar.RequesterID, &ar.Reason, &ar.Status,
		&ar.ReviewedByID, &ar.ReviewNotes, &ar.ReviewedAt, &ar.CreatedAt,
		&rqUsername, &rqFullName, &rqRole,
		&rvUsername, &rvFullName, &rvRole,
	)
	if err != nil {
		return nil, err
	}
	ar.Requester = &model.UserSummary{ID: ar.RequesterID, Username: rqUsername, FullName: rqFullName, Role: rqRole}
	ar.Reviewer = userSummary(ar.ReviewedByID, rvUsername, rvFullName, rvRole)
	return ar, nil
}

func (r *accessRequestRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error) {
	rows, err := r.db.Query(ctx, accessRequestSelect+`
		WHERE ar.evidence_id = $1
		ORDER BY ar.created_at DESC, ar.id`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения запросов доступа: %w", err)
	}
	defer rows.Close()

	var result []*model.AccessRequest
	for rows.Next() {
		ar, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования запроса доступа: %w", err)
		}
		result = append(result, ar)
	}
	return result, rows.Err()
}

func (r *accessRequestRepo) Create(ctx context.Context, ar *model.AccessRequest) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO evidence_access_requests (id, evidence_id, requester_id, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		ar.ID, ar.EvidenceID, ar.RequesterID, ar.Reason, ar.Status,
	).Scan(&ar.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ожидающий запрос доступа уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания запроса доступа: %w", err)
	}
	return nil
}

func (r *accessRequestRepo) GetByID(ctx context.Context, evidenceID, id string) (*model.AccessRequest, error) {
	ar, err := scanAccessRequest(r.db.QueryRow(ctx, accessRequestSelect+`
		WHERE ar.id = $1 AND ar.evidence_id = $2`, id, evidenceID))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения запроса доступа")
	}
	return ar, nil
}

func (r *accessRequestRepo) Review(ctx context.Context, id, status, reviewerID string, notes null.String) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE evidence_access_requests
		SET status = $2, reviewed_by = $3, review_notes = $4, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, status, reviewerID, notes)
	if err != nil {
		return fmt.Errorf("ошибка рассмотрения запроса доступа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: запрос доступа уже рассмотрен", ErrConflict)
	}
	return nil
}

func (r *accessRequestRepo) HasApproved(ctx context.Context, evidenceID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM evidence_access_requests
			WHERE evidence_id = $1 AND requester_id = $2 AND status = 'approved'
		)`, evidenceID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки одобренного доступа: %w", err)
	}
	return ok, nil
}
