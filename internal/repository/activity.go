package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// ActivityRepository — интерфейс доступа к журналу активности.
type ActivityRepository interface {
	// Create добавляет запись журнала.
	Create(ctx context.Context, a *model.ActivityLog) error
	// List возвращает страницу журнала (новые первыми).
	List(ctx context.Context, limit, offset int) ([]*model.ActivityLog, error)
	// Count возвращает общее количество записей.
	Count(ctx context.Context) (int, error)
}

type activityRepo struct {
	db DBTX
}

// NewActivityRepository создаёт репозиторий журнала активности.
func NewActivityRepository(db DBTX) ActivityRepository {
	return &activityRepo{db: db}
}

func (r *activityRepo) Create(ctx context.Context, a *model.ActivityLog) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO activity_logs (id, actor_id, action, entity_type, entity_id, entity_label)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		a.ID, a.ActorID, a.Action, a.EntityType, a.EntityID, a.EntityLabel,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала активности: %w", err)
	}
	return nil
}

func (r *activityRepo) List(ctx context.Context, limit, offset int) ([]*model.ActivityLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.actor_id, a.action, a.entity_type, a.entity_id,
			a.entity_label, a.created_at, u.username, u.full_name, u.role
		FROM activity_logs a
		JOIN users u ON u.id = a.actor_id
		ORDER BY a.created_at DESC, a.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала активности: %w", err)
	}
	defer rows.Close()

	var result []*model.ActivityLog
	for rows.Next() {
		a := &model.ActivityLog{}
		var username, fullName, role string
		if err := rows.Scan(&a.ID, &a.ActorID, &a.Action, &a.EntityType, &a.EntityID,
			&a.EntityLabel, &a.CreatedAt, &username, &fullName, &role); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		a.Actor = &model.UserSummary{ID: a.ActorID, Username: username, FullName: fullName, Role: role}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *activityRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return count, nil
}
