// feed.go — уведомления, журнал активности и статистика панели.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// Ограничения выборок.
const (
	notificationsLimit   = 50
	defaultActivityLimit = 30
	maxActivityLimit     = 100
	maxActivityPage      = 1_000_000
	statsDays            = 7
)

// NotificationList — уведомления пользователя и число непрочитанных.
type NotificationList struct {
	Notifications []*model.Notification
	UnreadCount   int
}

// ActivityPage — страница журнала активности.
type ActivityPage struct {
	Logs       []*model.ActivityLog
	Total      int
	Page       int
	TotalPages int
}

// FeedService — уведомления, журнал активности и статистика.
type FeedService struct {
	store  *Store
	now    func() time.Time
	logger *slog.Logger
}

// NewFeedService создаёт сервис ленты.
func NewFeedService(store *Store, logger *slog.Logger) *FeedService {
	return &FeedService{
		store:  store,
		now:    time.Now,
		logger: logger.With(slog.String("component", "feed_service")),
	}
}

// Notifications возвращает последние уведомления вызывающего.
func (s *FeedService) Notifications(ctx context.Context, p model.Principal) (*NotificationList, error) {
	repo := s.store.Repos().Notifications
	items, err := repo.ListForUser(ctx, p.ID, notificationsLimit)
	if err != nil {
		return nil, fmt.Errorf("список уведомлений: %w", err)
	}
	unread, err := repo.CountUnread(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("подсчёт непрочитанных: %w", err)
	}
	if items == nil {
		items = []*model.Notification{}
	}
	return &NotificationList{Notifications: items, UnreadCount: unread}, nil
}

// MarkAllRead отмечает все уведомления вызывающего прочитанными.
func (s *FeedService) MarkAllRead(ctx context.Context, p model.Principal) error {
	if err := s.store.Repos().Notifications.MarkAllRead(ctx, p.ID); err != nil {
		return fmt.Errorf("отметка уведомлений: %w", err)
	}
	return nil
}

// MarkRead отмечает уведомление прочитанным. Чужое уведомление
// неотличимо от несуществующего.
func (s *FeedService) MarkRead(ctx context.Context, p model.Principal, id string) error {
	if err := s.store.Repos().Notifications.MarkRead(ctx, id, p.ID); err != nil {
		return repoError(err, "отметка уведомления", "Notification not found")
	}
	return nil
}

// Activity возвращает страницу журнала. page < 1 приводится к 1,
// limit — к диапазону 1..100 (0 — значение по умолчанию).
func (s *FeedService) Activity(ctx context.Context, page, limit int) (*ActivityPage, error) {
	page, limit = clampPage(page, limit)

	repo := s.store.Repos().Activity
	total, err := repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт журнала активности: %w", err)
	}
	logs, err := repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("журнал активности: %w", err)
	}
	if logs == nil {
		logs = []*model.ActivityLog{}
	}

	return &ActivityPage{
		Logs:       logs,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Stats собирает агрегаты панели. Гистограмма — ровно семь дней
// по UTC, от шести дней назад до сегодня; дни без улик — нули.
func (s *FeedService) Stats(ctx context.Context, p model.Principal) (*model.Stats, error) {
	repo := s.store.Repos().Stats

	totals, err := repo.Totals(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("счётчики статистики: %w", err)
	}
	byStatus, err := repo.EvidenceByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("улики по статусу: %w", err)
	}
	byType, err := repo.EvidenceByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("улики по типу: %w", err)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(statsDays - 1))
	perDay, err := repo.EvidenceCreatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("улики по дням: %w", err)
	}

	stats := &model.Stats{
		TotalEvidence:         totals.TotalEvidence,
		PendingTransfers:      totals.PendingTransfers,
		TotalCases:            totals.TotalCases,
		TotalLabs:             totals.TotalLabs,
		PendingAccessRequests: totals.PendingAccessRequests,
		UnreadNotifications:   totals.UnreadNotifications,
		EvidenceByStatus:      make([]model.StatusCount, 0, len(byStatus)),
		EvidenceByType:        make([]model.TypeCount, 0, len(byType)),
		EvidenceOverTime:      fillDays(since, statsDays, perDay),
	}
	for _, c := range byStatus {
		stats.EvidenceByStatus = append(stats.EvidenceByStatus, model.StatusCount{Status: c.Key, Count: c.Count})
	}
	for _, c := range byType {
		stats.EvidenceByType = append(stats.EvidenceByType, model.TypeCount{Type: c.Key, Count: c.Count})
	}
	return stats, nil
}

// clampPage нормализует параметры пагинации журнала.
func clampPage(page, limit int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > maxActivityPage:
		page = maxActivityPage
	}
	switch {
	case limit == 0:
		limit = defaultActivityLimit
	case limit < 1:
		limit = 1
	case limit > maxActivityLimit:
		limit = maxActivityLimit
	}
	return page, limit
}

// fillDays разворачивает счётчики по дням в непрерывный ряд из days дней.
func fillDays(since time.Time, days int, counts []model.CountByKey) []model.DayCount {
	byDay := make(map[string]int, len(counts))
	for _, c := range counts {
		byDay[c.Key] = c.Count
	}
	result := make([]model.DayCount, 0, days)
	for i := range days {
		date := since.AddDate(0, 0, i).Format(time.DateOnly)
		result = append(result, model.DayCount{Date: date, Count: byDay[date]})
	}
	return result
}
