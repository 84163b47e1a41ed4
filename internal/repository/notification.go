package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// NotificationRepository — интерфейс доступа к таблице notifications.
type NotificationRepository interface {
	// ListForUser возвращает уведомления пользователя (новые первыми).
	ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	// CountUnread возвращает количество непрочитанных уведомлений.
	CountUnread(ctx context.Context, userID string) (int, error)
	// Insert сохраняет уведомление. Повтор с тем же dedupe_key
	// игнорируется; возвращает true, если строка вставлена.
	Insert(ctx context.Context, n *model.Notification) (bool, error)
	// MarkAllRead отмечает все уведомления пользователя прочитанными.
	MarkAllRead(ctx context.Context, userID string) error
	// MarkRead отмечает уведомление прочитанным. Уведомление другого
	// пользователя или несуществующее — ErrNotFound.
	MarkRead(ctx context.Context, id, userID string) error
}

type notificationRepo struct {
	db DBTX
}

// NewNotificationRepository создаёт репозиторий уведомлений.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, title, message, link, is_read, dedupe_key, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений: %w", err)
	}
	defer rows.Close()

	var result []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.Link, &n.IsRead, &n.DedupeKey, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта непрочитанных уведомлений: %w", err)
	}
	return count, nil
}

func (r *notificationRepo) Insert(ctx context.Context, n *model.Notification) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, link, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Link, n.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения уведомления: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return fmt.Errorf("ошибка отметки уведомлений: %w", err)
	}
	return nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("ошибка отметки уведомления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
