package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/guregu/null/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// EvidenceRepository — интерфейс доступа к таблице evidence.
type EvidenceRepository interface {
	// Create регистрирует улику.
	Create(ctx context.Context, e *model.Evidence) error
	// GetByID возвращает улику со сводками собравшего и хранителя.
	GetByID(ctx context.Context, id string) (*model.Evidence, error)
	// List возвращает улики по фильтру (новые первыми).
	List(ctx context.Context, filter model.EvidenceFilter) ([]*model.Evidence, error)
	// SetRetention перезаписывает срок и политику хранения,
	// сбрасывая отметку уведомления о сроке.
	SetRetention(ctx context.Context, id string, deadline null.Time, policy null.String) error
	// SetAllowedRoles перезаписывает список разрешённых ролей (nil — без ограничений).
	SetAllowedRoles(ctx context.Context, id string, roles []string) error
	// SetCustodian назначает текущего хранителя.
	SetCustodian(ctx context.Context, id, userID string) error
	// SetFileHashIfEmpty устанавливает хеш целостности, если он ещё не задан.
	SetFileHashIfEmpty(ctx context.Context, id, hash string) error
	// FindByHash ищет улику по хешу целостности или хешу любого её файла.
	FindByHash(ctx context.Context, hash string) (*model.Evidence, error)
	// ListRetentionDue возвращает улики с наступившим сроком хранения,
	// по которым ещё не отправлено уведомление.
	ListRetentionDue(ctx context.Context, now time.Time, limit int) ([]*model.Evidence, error)
	// MarkRetentionNotified отмечает отправку уведомления о сроке.
	// Возвращает false, если срок изменился или отметка уже стоит.
	MarkRetentionNotified(ctx context.Context, id string, deadline time.Time) (bool, error)
	// DeleteNotInCase удаляет улики вне указанного дела (каскадно).
	DeleteNotInCase(ctx context.Context, caseID string) (int64, error)
}

type evidenceRepo struct {
	db DBTX
}

// NewEvidenceRepository создаёт репозиторий улик.
func NewEvidenceRepository(db DBTX) EvidenceRepository {
	return &evidenceRepo{db: db}
}

var evidenceColumns = []string{
	"e.id", "e.case_id", "e.crime_box_id", "e.type", "e.description", "e.status",
	"e.collection_date", "e.location", "e.collected_by_id", "e.current_custodian_id",
	"e.file_hash", "e.tags", "e.retention_deadline", "e.retention_policy",
	"e.retention_notified_at", "e.allowed_roles", "e.created_at", "e.updated_at",
	"cb.username", "cb.full_name", "cb.role",
	"cu.username", "cu.full_name", "cu.role",
}

// evidenceSelect — базовый SELECT улик со сводками пользователей.
func evidenceSelect() squirrel.SelectBuilder {
	return psql.Select(evidenceColumns...).
		From("evidence e").
		Join("users cb ON cb.id = e.collected_by_id").
		Join("users cu ON cu.id = e.current_custodian_id")
}

func scanEvidence(row rowScanner) (*model.Evidence, error) {
	e := &model.Evidence{}
	var rawRoles []byte
	var cbUsername, cbFullName, cbRole, cuUsername, cuFullName, cuRole string
	err := row.Scan(
		&e.ID, &e.CaseID, &e.CrimeBoxID, &e.Type, &e.Description, &e.Status,
		&e.CollectionDate, &e.Location, &e.CollectedByID, &e.CurrentCustodianID,
		&e.FileHash, &e.Tags, &e.RetentionDeadline, &e.RetentionPolicy,
		&e.RetentionNotifiedAt, &rawRoles, &e.CreatedAt, &e.UpdatedAt,
		&cbUsername, &cbFullName, &cbRole,
		&cuUsername, &cuFullName, &cuRole,
	)
	if err != nil {
		return nil, err
	}
	if e.AllowedRoles, err = decodeRoles(rawRoles); err != nil {
		return nil, err
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	e.CollectedBy = &model.UserSummary{ID: e.CollectedByID, Username: cbUsername, FullName: cbFullName, Role: cbRole}
	e.CurrentCustodian = &model.UserSummary{ID: e.CurrentCustodianID, Username: cuUsername, FullName: cuFullName, Role: cuRole}
	return e, nil
}

func (r *evidenceRepo) Create(ctx context.Context, e *model.Evidence) error {
	roles, err := encodeRoles(e.AllowedRoles)
	if err != nil {
		return err
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO evidence (id, case_id, crime_box_id, type, description, status,
			collection_date, location, collected_by_id, current_custodian_id,
			file_hash, tags, retention_deadline, retention_policy, allowed_roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb)
		RETURNING created_at, updated_at`,
		e.ID, e.CaseID, e.CrimeBoxID, e.Type, e.Description, e.Status,
		e.CollectionDate, e.Location, e.CollectedByID, e.CurrentCustodianID,
		e.FileHash, e.Tags, e.RetentionDeadline, e.RetentionPolicy, roles,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания улики: %w", err)
	}
	return nil
}

func (r *evidenceRepo) GetByID(ctx context.Context, id string) (*model.Evidence, error) {
	sql, args, err := evidenceSelect().Where(squirrel.Eq{"e.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса улики: %w", err)
	}
	e, err := scanEvidence(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения улики")
	}
	return e, nil
}

func (r *evidenceRepo) List(ctx context.Context, filter model.EvidenceFilter) ([]*model.Evidence, error) {
	q := evidenceSelect().OrderBy("e.created_at DESC", "e.id")
	if filter.CaseID != "" {
		q = q.Where(squirrel.Eq{"e.case_id": filter.CaseID})
	}
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"e.status": filter.Status})
	}
	if filter.Type != "" {
		q = q.Where(squirrel.Eq{"e.type": filter.Type})
	}
	return r.query(ctx, q)
}

func (r *evidenceRepo) FindByHash(ctx context.Context, hash string) (*model.Evidence, error) {
	q := evidenceSelect().
		Where(squirrel.Or{
			squirrel.Eq{"e.file_hash": hash},
			squirrel.Expr("EXISTS (SELECT 1 FROM evidence_files f WHERE f.evidence_id = e.id AND f.sha256_hash = ?)", hash),
		}).
		OrderBy("e.created_at", "e.id").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса поиска по хешу: %w", err)
	}
	e, err := scanEvidence(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, notFoundOr(err, "ошибка поиска улики по хешу")
	}
	return e, nil
}

func (r *evidenceRepo) ListRetentionDue(ctx context.Context, now time.Time, limit int) ([]*model.Evidence, error) {
	q := evidenceSelect().
		Where(squirrel.NotEq{"e.retention_deadline": nil}).
		Where(squirrel.Eq{"e.retention_notified_at": nil}).
		Where(squirrel.LtOrEq{"e.retention_deadline": now}).
		OrderBy("e.retention_deadline", "e.id").
		Limit(uint64(limit))
	return r.query(ctx, q)
}

func (r *evidenceRepo) query(ctx context.Context, q squirrel.SelectBuilder) ([]*model.Evidence, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса улик: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка улик: %w", err)
	}
	defer rows.Close()

	var result []*model.Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования улики: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *evidenceRepo) SetRetention(ctx context.Context, id string, deadline null.Time, policy null.String) error {
	return r.execOne(ctx, "ошибка обновления срока хранения", `
		UPDATE evidence
		SET retention_deadline = $2, retention_policy = $3,
			retention_notified_at = NULL, updated_at = NOW()
		WHERE id = $1`, id, deadline, policy)
}

func (r *evidenceRepo) SetAllowedRoles(ctx context.Context, id string, roles []string) error {
	encoded, err := encodeRoles(roles)
	if err != nil {
		return err
	}
	return r.execOne(ctx, "ошибка обновления разрешённых ролей", `
		UPDATE evidence SET allowed_roles = $2::jsonb, updated_at = NOW()
		WHERE id = $1`, id, encoded)
}

func (r *evidenceRepo) SetCustodian(ctx context.Context, id, userID string) error {
	return r.execOne(ctx, "ошибка смены хранителя", `
		UPDATE evidence SET current_custodian_id = $2, updated_at = NOW()
		WHERE id = $1`, id, userID)
}

func (r *evidenceRepo) SetFileHashIfEmpty(ctx context.Context, id, hash string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE evidence SET file_hash = $2, updated_at = NOW()
		WHERE id = $1 AND file_hash IS NULL`, id, hash)
	if err != nil {
		return fmt.Errorf("ошибка установки хеша улики: %w", err)
	}
	return nil
}

func (r *evidenceRepo) MarkRetentionNotified(ctx context.Context, id string, deadline time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE evidence SET retention_notified_at = NOW()
		WHERE id = $1 AND retention_deadline = $2 AND retention_notified_at IS NULL`,
		id, deadline)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки уведомления о сроке хранения: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *evidenceRepo) DeleteNotInCase(ctx context.Context, caseID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM evidence WHERE case_id IS DISTINCT FROM $1`, caseID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления улик: %w", err)
	}
	return tag.RowsAffected(), nil
}

// execOne выполняет UPDATE одной строки; 0 затронутых строк — ErrNotFound.
func (r *evidenceRepo) execOne(ctx context.Context, msg, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return notFoundOr(err, msg)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
