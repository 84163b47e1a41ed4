package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/repository"
)

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 30},
		{-3, 10, 1, 10},
		{2, 500, 2, 100},
		{5, -1, 5, 1},
		{1, 100, 1, 100},
		{math.MaxInt64 / 2, 100, maxActivityPage, 100},
	}
	for _, tt := range tests {
		page, limit := clampPage(tt.page, tt.limit)
		if page != tt.wantPage || limit != tt.wantLimit {
			t.Errorf("clampPage(%d, %d) = (%d, %d), ожидается (%d, %d)",
				tt.page, tt.limit, page, limit, tt.wantPage, tt.wantLimit)
		}
	}
}

func TestFeedService_Activity(t *testing.T) {
	repos := newTestRepos()
	repos.activity.countFn = func(context.Context) (int, error) { return 45, nil }
	var gotLimit, gotOffset int
	repos.activity.listFn = func(_ context.Context, limit, offset int) ([]*model.ActivityLog, error) {
		gotLimit, gotOffset = limit, offset
		return nil, nil
	}
	svc := NewFeedService(repos.store(), testLogger())

	page, err := svc.Activity(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("Activity() вернул ошибку: %v", err)
	}
	if gotLimit != 30 || gotOffset != 30 {
		t.Errorf("List(limit=%d, offset=%d), ожидается (30, 30)", gotLimit, gotOffset)
	}
	if page.Total != 45 || page.TotalPages != 2 || page.Page != 2 {
		t.Errorf("страница = %+v", page)
	}
	if page.Logs == nil {
		t.Error("Logs должен быть пустым срезом")
	}
}

func TestFeedService_Activity_HugePage(t *testing.T) {
	repos := newTestRepos()
	repos.activity.countFn = func(context.Context) (int, error) { return 3, nil }
	var gotOffset int
	repos.activity.listFn = func(_ context.Context, _, offset int) ([]*model.ActivityLog, error) {
		gotOffset = offset
		return nil, nil
	}
	svc := NewFeedService(repos.store(), testLogger())

	if _, err := svc.Activity(context.Background(), math.MaxInt64/2, 100); err != nil {
		t.Fatalf("Activity() вернул ошибку: %v", err)
	}
	if gotOffset < 0 {
		t.Errorf("offset = %d, ожидается неотрицательный", gotOffset)
	}
	if want := (maxActivityPage - 1) * 100; gotOffset != want {
		t.Errorf("offset = %d, ожидается %d", gotOffset, want)
	}
}

func TestFeedService_Stats(t *testing.T) {
	repos := newTestRepos()
	repos.stats.totalsFn = func(_ context.Context, userID string) (*repository.Totals, error) {
		if userID != officer.ID {
			t.Errorf("Totals(%q), ожидается вызывающий", userID)
		}
		return &repository.Totals{TotalEvidence: 4, TotalCases: 2, PendingTransfers: 1}, nil
	}
	repos.stats.byStatusFn = func(context.Context) ([]model.CountByKey, error) {
		return []model.CountByKey{{Key: "secured", Count: 4}}, nil
	}
	repos.stats.byTypeFn = func(context.Context) ([]model.CountByKey, error) {
		return []model.CountByKey{{Key: "physical", Count: 3}, {Key: "digital", Count: 1}}, nil
	}
	var since time.Time
	repos.stats.createdSinceFn = func(_ context.Context, s time.Time) ([]model.CountByKey, error) {
		since = s
		return []model.CountByKey{{Key: "2026-10-10", Count: 3}, {Key: "2026-10-16", Count: 1}}, nil
	}
	svc := NewFeedService(repos.store(), testLogger())
	svc.now = func() time.Time { return time.Date(2026, 10, 16, 23, 30, 0, 0, time.UTC) }

	stats, err := svc.Stats(context.Background(), officer)
	if err != nil {
		t.Fatalf("Stats() вернул ошибку: %v", err)
	}
	if want := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC); !since.Equal(want) {
		t.Errorf("since = %v, ожидается %v", since, want)
	}
	if stats.TotalEvidence != 4 || stats.TotalCases != 2 || stats.PendingTransfers != 1 {
		t.Errorf("счётчики = %+v", stats)
	}
	if len(stats.EvidenceOverTime) != 7 {
		t.Fatalf("дней = %d, ожидается 7", len(stats.EvidenceOverTime))
	}
	wantCounts := []int{3, 0, 0, 0, 0, 0, 1}
	for i, d := range stats.EvidenceOverTime {
		if d.Count != wantCounts[i] {
			t.Errorf("день %s = %d, ожидается %d", d.Date, d.Count, wantCounts[i])
		}
	}
	if stats.EvidenceOverTime[0].Date != "2026-10-10" || stats.EvidenceOverTime[6].Date != "2026-10-16" {
		t.Errorf("диапазон = %s..%s", stats.EvidenceOverTime[0].Date, stats.EvidenceOverTime[6].Date)
	}
	if len(stats.EvidenceByType) != 2 || stats.EvidenceByType[0].Type != "physical" {
		t.Errorf("EvidenceByType = %+v", stats.EvidenceByType)
	}
}

func TestFeedService_MarkRead_Foreign(t *testing.T) {
	repos := newTestRepos()
	repos.notifications.markReadFn = func(_ context.Context, _, userID string) error {
		if userID != officer.ID {
			t.Errorf("MarkRead(userID=%q), ожидается вызывающий", userID)
		}
		return repository.ErrNotFound
	}
	svc := NewFeedService(repos.store(), testLogger())

	if err := svc.MarkRead(context.Background(), officer, "n-foreign"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRead() ошибка = %v, ожидается ErrNotFound", err)
	}
}

func TestFeedService_Notifications(t *testing.T) {
	repos := newTestRepos()
	repos.notifications.listFn = func(_ context.Context, _ string, limit int) ([]*model.Notification, error) {
		if limit != 50 {
			t.Errorf("limit = %d, ожидается 50", limit)
		}
		return []*model.Notification{{ID: "n1"}, {ID: "n2", IsRead: true}}, nil
	}
	repos.notifications.countUnreadFn = func(context.Context, string) (int, error) { return 1, nil }
	svc := NewFeedService(repos.store(), testLogger())

	list, err := svc.Notifications(context.Background(), officer)
	if err != nil {
		t.Fatalf("Notifications() вернул ошибку: %v", err)
	}
	if len(list.Notifications) != 2 || list.UnreadCount != 1 {
		t.Errorf("список = %d, непрочитанных = %d", len(list.Notifications), list.UnreadCount)
	}
}
