package repository

import (
	"context"
	"fmt"

	"github.com/guregu/null/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// CustodyRepository — интерфейс доступа к таблице custody_events.
type CustodyRepository interface {
	// Create создаёт событие передачи. Уже есть ожидающая передача — ErrConflict.
	Create(ctx context.Context, ev *model.CustodyEvent) error
	// GetByID возвращает событие передачи.
	GetByID(ctx context.Context, id string) (*model.CustodyEvent, error)
	// ListByEvidence возвращает журнал передач улики (хронологически).
	ListByEvidence(ctx context.Context, evidenceID string) ([]*model.CustodyEvent, error)
	// ListPendingForUser возвращает ожидающие передачи, адресованные пользователю.
	ListPendingForUser(ctx context.Context, userID string) ([]*model.CustodyEvent, error)
	// Resolve переводит ожидающую передачу в конечный статус.
	// Передача уже не ожидает — ErrConflict.
	Resolve(ctx context.Context, id, status string) (*model.CustodyEvent, error)
}

type custodyRepo struct {
	db DBTX
}

// NewCustodyRepository создаёт репозиторий журнала передач.
func NewCustodyRepository(db DBTX) CustodyRepository {
	return &custodyRepo{db: db}
}

const custodySelect = `
	SELECT ce.id, ce.evidence_id, ce.from_user_id, ce.to_user_id, ce.status,
		ce.reason, ce.created_at, ce.resolved_at,
		fu.username, fu.full_name, fu.role,
		tu.username, tu.full_name, tu.role
	FROM custody_events ce
	LEFT JOIN users fu ON fu.id = ce.from_user_id
	JOIN users tu ON tu.id = ce.to_user_id`

func scanCustodyEvent(row rowScanner) (*model.CustodyEvent, error) {
	ev := &model.CustodyEvent{}
	var fuUsername, fuFullName, fuRole null.String
	var tuUsername, tuFullName, tuRole string
	err := row.Scan(
		&ev.ID, &ev.EvidenceID, &ev.FromUserID, &ev.ToUserID, &ev.Status,
		&ev.Reason, &ev.CreatedAt, &ev.ResolvedAt,
		&fuUsername, &fuFullName, &fuRole,
		&tuUsername, &tuFullName, &tuRole,
	)
	if err != nil {
		return nil, err
	}
	ev.FromUser = userSummary(ev.FromUserID, fuUsername, fuFullName, fuRole)
	ev.ToUser = &model.UserSummary{ID: ev.ToUserID, Username: tuUsername, FullName: tuFullName, Role: tuRole}
	return ev, nil
}

func (r *custodyRepo) Create(ctx context.Context, ev *model.CustodyEvent) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO custody_events (id, evidence_id, from_user_id, to_user_id, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		ev.ID, ev.EvidenceID, ev.FromUserID, ev.ToUserID, ev.Status, ev.Reason,
	).Scan(&ev.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: передача улики уже ожидает подтверждения", ErrConflict)
		}
		return fmt.Errorf("ошибка создания передачи: %w", err)
	}
	return nil
}

func (r *custodyRepo) GetByID(ctx context.Context, id string) (*model.CustodyEvent, error) {
	ev, err := scanCustodyEvent(r.db.QueryRow(ctx, custodySelect+` WHERE ce.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения передачи")
	}
	return ev, nil
}

func (r *custodyRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.CustodyEvent, error) {
	return r.list(ctx, custodySelect+`
		WHERE ce.evidence_id = $1
		ORDER BY ce.created_at, ce.id`, evidenceID)
}

func (r *custodyRepo) ListPendingForUser(ctx context.Context, userID string) ([]*model.CustodyEvent, error) {
	return r.list(ctx, custodySelect+`
		WHERE ce.to_user_id = $1 AND ce.status = 'pending'
		ORDER BY ce.created_at DESC, ce.id`, userID)
}

func (r *custodyRepo) Resolve(ctx context.Context, id, status string) (*model.CustodyEvent, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE custody_events SET status = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка завершения передачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: передача уже завершена", ErrConflict)
	}
	return r.GetByID(ctx, id)
}

func (r *custodyRepo) list(ctx context.Context, query string, args ...any) ([]*model.CustodyEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала передач: %w", err)
	}
	defer rows.Close()

	var result []*model.CustodyEvent
	for rows.Next() {
		ev, err := scanCustodyEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования передачи: %w", err)
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}
