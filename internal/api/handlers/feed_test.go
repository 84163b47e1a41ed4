package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/service"
)

func TestListNotifications_EmptyArray(t *testing.T) {
	h := newTestHandler(Services{Feed: &mockFeedService{
		notificationsFn: func(_ context.Context, _ model.Principal) (*service.NotificationList, error) {
			return &service.NotificationList{}, nil
		},
	}})

	rec := httptest.NewRecorder()
	h.ListNotifications(rec, newRequest(http.MethodGet, "/api/v1/notifications", "", &officer))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"notifications\":[],\"unreadCount\":0}\n" {
		t.Errorf("тело = %q", body)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	var gotUser, gotID string
	h := newTestHandler(Services{Feed: &mockFeedService{
		markFn: func(_ context.Context, p model.Principal, id string) error {
			gotUser, gotID = p.ID, id
			return nil
		},
		markAllFn: func(_ context.Context, _ model.Principal) error {
			return nil
		},
	}})

	rec := httptest.NewRecorder()
	h.MarkNotificationRead(rec, newRequest(http.MethodPut, "/api/v1/notifications/n1/read", "", &lawyer, "id", "n1"))
	if rec.Code != http.StatusOK || gotUser != lawyer.ID || gotID != "n1" {
		t.Errorf("статус = %d, MarkRead(%q, %q)", rec.Code, gotUser, gotID)
	}

	rec = httptest.NewRecorder()
	h.MarkAllNotificationsRead(rec, newRequest(http.MethodPut, "/api/v1/notifications/read-all", "", &lawyer))
	if body := rec.Body.String(); body != "{\"success\":true}\n" {
		t.Errorf("тело = %q", body)
	}
}

func TestListActivity(t *testing.T) {
	var gotPage, gotLimit int
	h := newTestHandler(Services{Feed: &mockFeedService{
		activityFn: func(_ context.Context, page, limit int) (*service.ActivityPage, error) {
			gotPage, gotLimit = page, limit
			return &service.ActivityPage{
				Logs:       []*model.ActivityLog{{ID: "a1", Action: model.ActionCreatedCase}},
				Total:      41,
				Page:       page,
				TotalPages: 3,
			}, nil
		},
	}})

	t.Run("параметры передаются", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListActivity(rec, newRequest(http.MethodGet, "/api/v1/activity?page=2&limit=20", "", &officer))
		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, ожидается 200", rec.Code)
		}
		if gotPage != 2 || gotLimit != 20 {
			t.Errorf("Activity(%d, %d), хотели (2, 20)", gotPage, gotLimit)
		}
		body := decodeBody[map[string]any](t, rec)
		if body["total"] != float64(41) || body["totalPages"] != float64(3) || body["page"] != float64(2) {
			t.Errorf("тело = %v", body)
		}
	})

	t.Run("значения по умолчанию", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListActivity(rec, newRequest(http.MethodGet, "/api/v1/activity", "", &officer))
		if gotPage != 1 || gotLimit != 0 {
			t.Errorf("Activity(%d, %d), хотели (1, 0)", gotPage, gotLimit)
		}
	})

	t.Run("нечисловой limit", func(t *testing.T) {
		gotPage = -1
		rec := httptest.NewRecorder()
		h.ListActivity(rec, newRequest(http.MethodGet, "/api/v1/activity?limit=ten", "", &officer))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("статус = %d, ожидается 400", rec.Code)
		}
		if gotPage != -1 {
			t.Error("сервис не должен вызываться при ошибке параметров")
		}
	})
}

func TestGetStats(t *testing.T) {
	h := newTestHandler(Services{Feed: &mockFeedService{
		statsFn: func(_ context.Context, _ model.Principal) (*model.Stats, error) {
			return &model.Stats{
				TotalEvidence:    3,
				EvidenceByStatus: []model.StatusCount{{Status: "secured", Count: 3}},
			}, nil
		},
	}})

	rec := httptest.NewRecorder()
	h.GetStats(rec, newRequest(http.MethodGet, "/api/v1/stats", "", &head))
	body := decodeBody[map[string]any](t, rec)
	if body["totalEvidence"] != float64(3) {
		t.Errorf("totalEvidence = %v, хотели 3", body["totalEvidence"])
	}
}
