// feed.go — уведомления, журнал активности и статистика панели.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/blockevidence/internal/api/errors"
	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// activityParams — параметры пагинации журнала активности.
type activityParams struct {
	Page  *int
	Limit *int
}

type notificationsResponse struct {
	Notifications []*model.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

type activityResponse struct {
	Logs       []*model.ActivityLog `json:"logs"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	TotalPages int                  `json:"totalPages"`
}

// ListNotifications — GET /api/v1/notifications.
func (h *APIHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.feed.Notifications(r.Context(), p)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch notifications")
		return
	}
	notifications := list.Notifications
	if notifications == nil {
		notifications = []*model.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: notifications, UnreadCount: list.UnreadCount})
}

// MarkAllNotificationsRead — PUT /api/v1/notifications/read-all.
func (h *APIHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.feed.MarkAllRead(r.Context(), p); err != nil {
		h.fail(w, r, err, "Failed to update notifications")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// MarkNotificationRead — PUT /api/v1/notifications/{id}/read.
func (h *APIHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.feed.MarkRead(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "Failed to update notification")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ListActivity — GET /api/v1/activity?page=&limit=.
func (h *APIHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	var params activityParams
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", query, &params.Page); err != nil {
		apierrors.ValidationDetails(w, "Invalid query parameter", err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &params.Limit); err != nil {
		apierrors.ValidationDetails(w, "Invalid query parameter", err.Error())
		return
	}

	page, limit := 1, 0
	if params.Page != nil {
		page = *params.Page
	}
	if params.Limit != nil {
		limit = *params.Limit
	}

	res, err := h.feed.Activity(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch activity")
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{
		Logs:       res.Logs,
		Total:      res.Total,
		Page:       res.Page,
		TotalPages: res.TotalPages,
	})
}

// GetStats — GET /api/v1/stats.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	stats, err := h.feed.Stats(r.Context(), p)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
