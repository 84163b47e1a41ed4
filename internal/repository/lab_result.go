package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// LabResultRepository — интерфейс доступа к таблице lab_results.
type LabResultRepository interface {
	// ListByEvidence возвращает результаты экспертиз улики (новые первыми).
	ListByEvidence(ctx context.Context, evidenceID string) ([]*model.LabResult, error)
	// Create сохраняет результат экспертизы.
	Create(ctx context.Context, lr *model.LabResult) error
}

type labResultRepo struct {
	db DBTX
}

// NewLabResultRepository создаёт репозиторий результатов экспертиз.
func NewLabResultRepository(db DBTX) LabResultRepository {
	return &labResultRepo{db: db}
}

func (r *labResultRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.LabResult, error) {
	rows, err := r.db.Query(ctx, `
		SELECT lr.id, lr.evidence_id, lr.submitted_by, lr.title, lr.summary,
			lr.findings, lr.created_at, u.username, u.full_name, u.role
		FROM lab_results lr
		JOIN users u ON u.id = lr.submitted_by
		WHERE lr.evidence_id = $1
		ORDER BY lr.created_at DESC, lr.id`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения результатов экспертиз: %w", err)
	}
	defer rows.Close()

	var result []*model.LabResult
	for rows.Next() {
		lr := &model.LabResult{}
		var username, fullName, role string
		if err := rows.Scan(&lr.ID, &lr.EvidenceID, &lr.SubmittedByID, &lr.Title, &lr.Summary,
			&lr.Findings, &lr.CreatedAt, &username, &fullName, &role); err != nil {
			return nil, fmt.Errorf("ошибка сканирования результата экспертизы: %w", err)
		}
		lr.Submitter = &model.UserSummary{ID: lr.SubmittedByID, Username: username, FullName: fullName, Role: role}
		result = append(result, lr)
	}
	return result, rows.Err()
}

func (r *labResultRepo) Create(ctx context.Context, lr *model.LabResult) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO lab_results (id, evidence_id, submitted_by, title, summary, findings)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		lr.ID, lr.EvidenceID, lr.SubmittedByID, lr.Title, lr.Summary, lr.Findings,
	).Scan(&lr.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата экспертизы: %w", err)
	}
	return nil
}
