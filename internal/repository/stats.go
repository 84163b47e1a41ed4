package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// Totals — счётчики панели мониторинга.
type Totals struct {
	TotalEvidence         int
	PendingTransfers      int
	TotalCases            int
	TotalLabs             int
	PendingAccessRequests int
	UnreadNotifications   int
}

// StatsRepository — агрегирующие запросы для панели мониторинга.
type StatsRepository interface {
	// Totals возвращает счётчики; передачи и уведомления — для userID.
	Totals(ctx context.Context, userID string) (*Totals, error)
	// EvidenceByStatus группирует улики по статусу.
	EvidenceByStatus(ctx context.Context) ([]model.CountByKey, error)
	// EvidenceByType группирует улики по типу.
	EvidenceByType(ctx context.Context) ([]model.CountByKey, error)
	// EvidenceCreatedSince группирует улики, созданные начиная с since,
	// по дню (UTC, YYYY-MM-DD). Дни без улик отсутствуют.
	EvidenceCreatedSince(ctx context.Context, since time.Time) ([]model.CountByKey, error)
}

type statsRepo struct {
	db DBTX
}

// NewStatsRepository создаёт репозиторий агрегатов.
func NewStatsRepository(db DBTX) StatsRepository {
	return &statsRepo{db: db}
}

func (r *statsRepo) Totals(ctx context.Context, userID string) (*Totals, error) {
	t := &Totals{}
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM evidence),
			(SELECT COUNT(*) FROM custody_events WHERE to_user_id = $1 AND status = 'pending'),
			(SELECT COUNT(*) FROM cases),
			(SELECT COUNT(*) FROM lab_results),
			(SELECT COUNT(*) FROM evidence_access_requests WHERE status = 'pending'),
			(SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read)`,
		userID,
	).Scan(&t.TotalEvidence, &t.PendingTransfers, &t.TotalCases, &t.TotalLabs,
		&t.PendingAccessRequests, &t.UnreadNotifications)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта статистики: %w", err)
	}
	return t, nil
}

func (r *statsRepo) EvidenceByStatus(ctx context.Context) ([]model.CountByKey, error) {
	return r.groupBy(ctx, `
		SELECT status, COUNT(*) FROM evidence GROUP BY status ORDER BY status`)
}

func (r *statsRepo) EvidenceByType(ctx context.Context) ([]model.CountByKey, error) {
	return r.groupBy(ctx, `
		SELECT type, COUNT(*) FROM evidence GROUP BY type ORDER BY type`)
}

func (r *statsRepo) EvidenceCreatedSince(ctx context.Context, since time.Time) ([]model.CountByKey, error) {
	return r.groupBy(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM evidence
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day`, since)
}

func (r *statsRepo) groupBy(ctx context.Context, query string, args ...any) ([]model.CountByKey, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка агрегирования улик: %w", err)
	}
	defer rows.Close()

	var result []model.CountByKey
	for rows.Next() {
		var c model.CountByKey
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования агрегата: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
