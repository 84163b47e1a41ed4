// access_requests.go — запросы доступа к уликам.
//
// Уникальность ожидающего запроса (улика, заявитель) обеспечивает
// частичный уникальный индекс; рассмотрение — условный UPDATE по статусу
// pending. Журнал и уведомления пишутся в транзакции создания запроса.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/blockevidence/internal/domain/lifecycle"
	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// accessRequestsTotal — исходы операций с запросами доступа.
var accessRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "be_access_requests_total",
		Help: "Количество операций с запросами доступа по исходу.",
	},
	[]string{"outcome"},
)

// AccessRequestService — жизненный цикл запросов доступа.
type AccessRequestService struct {
	store      *Store
	dispatcher NotificationDispatcher
	logger     *slog.Logger
}

// NewAccessRequestService создаёт сервис запросов доступа.
func NewAccessRequestService(store *Store, dispatcher NotificationDispatcher, logger *slog.Logger) *AccessRequestService {
	return &AccessRequestService{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "access_request_service")),
	}
}

// List возвращает запросы доступа к улике, новые первыми.
func (s *AccessRequestService) List(ctx context.Context, evidenceID string) ([]*model.AccessRequest, error) {
	requests, err := s.store.Repos().AccessRequests.ListByEvidence(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("список запросов доступа: %w", err)
	}
	return requests, nil
}

// Create создаёт ожидающий запрос и уведомляет всех руководителей.
func (s *AccessRequestService) Create(ctx context.Context, p model.Principal, evidenceID, reason string) (*model.AccessRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("Reason is required")
	}

	ar := &model.AccessRequest{
		ID:          uuid.New().String(),
		EvidenceID:  evidenceID,
		RequesterID: p.ID,
		Reason:      reason,
		Status:      string(lifecycle.AccessPending),
		Requester:   &model.UserSummary{ID: p.ID, Username: p.Username, Role: p.Role},
	}

	var recipients int
	err := s.store.InTx(ctx, func(tx pgx.Tx, r *repository.Repositories) error {
		e, err := r.Evidence.GetByID(ctx, evidenceID)
		if err != nil {
			return repoError(err, "получение улики", "Evidence not found")
		}
		if err := r.AccessRequests.Create(ctx, ar); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return conflictError("You already have a pending request for this evidence")
			}
			return err
		}
		if err := r.Activity.Create(ctx, activityEntry(p, model.ActionRequestedAccess, model.EntityEvidence, e.ID, e.Description)); err != nil {
			return err
		}

		reviewers, err := r.Users.ListByRoles(ctx, rbac.ElevatedRoles)
		if err != nil {
			return err
		}
		batch := make([]model.Notification, 0, len(reviewers))
		for _, u := range reviewers {
			batch = append(batch, newNotification(u.ID, model.NotifyAccessRequest,
				"New Access Request",
				p.Username+" requested access to evidence",
				evidenceLink(u.ID, evidenceID),
				ar.ID,
			))
		}
		recipients = len(batch)
		return s.dispatcher.Dispatch(ctx, tx, batch)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			accessRequestsTotal.WithLabelValues("duplicate").Inc()
		}
		return nil, err
	}

	accessRequestsTotal.WithLabelValues("created").Inc()
	s.logger.Info("Запрос доступа создан",
		slog.String("request_id", ar.ID),
		slog.String("evidence_id", evidenceID),
		slog.String("user_id", p.ID),
		slog.Int("notified", recipients),
	)
	return ar, nil
}

// Review переводит ожидающий запрос в approved или denied.
// Повторное рассмотрение — конфликт.
func (s *AccessRequestService) Review(ctx context.Context, p model.Principal, evidenceID, requestID, status, notes string) (*model.AccessRequest, error) {
	if !rbac.HasPermission(p.Role, rbac.PermReviewAccessRequests) {
		return nil, forbiddenError("Only supervisors can review access requests")
	}
	target := lifecycle.Status(status)
	if err := lifecycle.AccessRequest.ValidateTarget(target); err != nil {
		return nil, validationError("Status must be approved or denied")
	}

	var reviewed *model.AccessRequest
	err := s.store.InTx(ctx, func(tx pgx.Tx, r *repository.Repositories) error {
		ar, err := r.AccessRequests.GetByID(ctx, evidenceID, requestID)
		if err != nil {
			return repoError(err, "получение запроса доступа", "Access request not found")
		}
		if err := lifecycle.AccessRequest.Transition(lifecycle.Status(ar.Status), target); err != nil {
			return conflictError("Access request has already been reviewed")
		}

		notesVal := null.NewString(strings.TrimSpace(notes), strings.TrimSpace(notes) != "")
		if err := r.AccessRequests.Review(ctx, ar.ID, status, p.ID, notesVal); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return conflictError("Access request has already been reviewed")
			}
			return err
		}
		if err := r.Activity.Create(ctx, activityEntry(p, model.ActionReviewedAccessRequest, model.EntityEvidence, evidenceID, status)); err != nil {
			return err
		}

		title := "Access Request Denied"
		if target == lifecycle.AccessApproved {
			title = "Access Request Approved"
		}
		n := newNotification(ar.RequesterID, model.NotifyAccessRequestReviewed,
			title,
			"Your access request was "+status,
			evidenceLink(ar.RequesterID, evidenceID),
			ar.ID,
		)
		if err := s.dispatcher.Dispatch(ctx, tx, []model.Notification{n}); err != nil {
			return err
		}

		reviewed, err = r.AccessRequests.GetByID(ctx, evidenceID, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	accessRequestsTotal.WithLabelValues(status).Inc()
	s.logger.Info("Запрос доступа рассмотрен",
		slog.String("request_id", requestID),
		slog.String("status", status),
		slog.String("reviewer_id", p.ID),
	)
	return reviewed, nil
}
