// custody.go — передача улики между хранителями.
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

	"github.com/bigkaa/blockevidence/internal/domain/lifecycle"
	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// CustodyService — запросы передачи хранения и их подтверждение.
type CustodyService struct {
	store      *Store
	dispatcher NotificationDispatcher
	logger     *slog.Logger
}

// NewCustodyService создаёт сервис передачи хранения.
func NewCustodyService(store *Store, dispatcher NotificationDispatcher, logger *slog.Logger) *CustodyService {
	return &CustodyService{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "custody_service")),
	}
}

// RequestTransfer создаёт ожидающую передачу улики пользователю toUserID.
// Инициировать может текущий хранитель или руководитель.
func (s *CustodyService) RequestTransfer(ctx context.Context, p model.Principal, evidenceID, toUserID, reason string) (*model.CustodyEvent, error) {
	toUserID = strings.TrimSpace(toUserID)
	reason = strings.TrimSpace(reason)
	switch {
	case toUserID == "" || reason == "":
		return nil, validationError("Recipient and reason are required")
	case toUserID == p.ID:
		return nil, validationError("Cannot transfer evidence to yourself")
	}
	if _, err := uuid.Parse(toUserID); err != nil {
		return nil, notFoundError("Recipient not found")
	}

	ev := &model.CustodyEvent{
		ID:         uuid.New().String(),
		EvidenceID: evidenceID,
		ToUserID:   toUserID,
		Status:     string(lifecycle.CustodyPending),
		Reason:     reason,
	}

	err := s.store.InTx(ctx, func(tx pgx.Tx, r *repository.Repositories) error {
		e, err := r.Evidence.GetByID(ctx, evidenceID)
		if err != nil {
			return repoError(err, "получение улики", "Evidence not found")
		}
		if e.CurrentCustodianID != p.ID && !rbac.IsElevated(p.Role) {
			return forbiddenError("Only the current custodian can transfer this evidence")
		}
		if e.CurrentCustodianID == toUserID {
			return validationError("Recipient is already the custodian")
		}
		recipient, err := r.Users.GetByID(ctx, toUserID)
		if err != nil {
			return repoError(err, "получение получателя", "Recipient not found")
		}

		ev.FromUserID = null.StringFrom(e.CurrentCustodianID)
		if err := r.Custody.Create(ctx, ev); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return conflictError("A transfer for this evidence is already pending")
			}
			return err
		}
		if err := r.Activity.Create(ctx, activityEntry(p, model.ActionRequestedTransfer, model.EntityEvidence, e.ID, e.Description)); err != nil {
			return err
		}

		n := newNotification(recipient.ID, model.NotifyCustodyTransfer,
			"Custody Transfer Request",
			p.Username+" wants to transfer evidence to you",
			evidenceLink(recipient.ID, evidenceID),
			ev.ID,
		)
		if err := s.dispatcher.Dispatch(ctx, tx, []model.Notification{n}); err != nil {
			return err
		}

		created, err := r.Custody.GetByID(ctx, ev.ID)
		if err != nil {
			return err
		}
		ev = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Запрошена передача улики",
		slog.String("event_id", ev.ID),
		slog.String("evidence_id", evidenceID),
		slog.String("to_user_id", toUserID),
	)
	return ev, nil
}

// Accept подтверждает передачу и назначает получателя хранителем.
func (s *CustodyService) Accept(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error) {
	return s.resolve(ctx, p, eventID, lifecycle.CustodyCompleted)
}

// Reject отклоняет передачу.
func (s *CustodyService) Reject(ctx context.Context, p model.Principal, eventID string) (*model.CustodyEvent, error) {
	return s.resolve(ctx, p, eventID, lifecycle.CustodyRejected)
}

// ListPending возвращает ожидающие передачи, адресованные вызывающему.
func (s *CustodyService) ListPending(ctx context.Context, p model.Principal) ([]*model.CustodyEvent, error) {
	events, err := s.store.Repos().Custody.ListPendingForUser(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("ожидающие передачи: %w", err)
	}
	return events, nil
}

func (s *CustodyService) resolve(ctx context.Context, p model.Principal, eventID string, target lifecycle.Status) (*model.CustodyEvent, error) {
	var resolved *model.CustodyEvent
	err := s.store.InTx(ctx, func(tx pgx.Tx, r *repository.Repositories) error {
		ev, err := r.Custody.GetByID(ctx, eventID)
		if err != nil {
			return repoError(err, "получение передачи", "Transfer not found")
		}
		if ev.ToUserID != p.ID {
			return forbiddenError("Only the recipient can resolve this transfer")
		}
		if err := lifecycle.Custody.Transition(lifecycle.Status(ev.Status), target); err != nil {
			return conflictError("Transfer is no longer pending")
		}

		resolved, err = r.Custody.Resolve(ctx, eventID, string(target))
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return conflictError("Transfer is no longer pending")
			}
			return err
		}

		action := model.ActionRejectedTransfer
		if target == lifecycle.CustodyCompleted {
			action = model.ActionAcceptedTransfer
			if err := r.Evidence.SetCustodian(ctx, ev.EvidenceID, p.ID); err != nil {
				return repoError(err, "смена хранителя", "Evidence not found")
			}
		}
		if err := r.Activity.Create(ctx, activityEntry(p, action, model.EntityEvidence, ev.EvidenceID, "")); err != nil {
			return err
		}

		if !ev.FromUserID.Valid {
			return nil
		}
		n := newNotification(ev.FromUserID.String, model.NotifyCustodyTransferResolved,
			"Custody Transfer "+transferWord(target),
			p.Username+" "+strings.ToLower(transferWord(target))+" your custody transfer",
			evidenceLink(ev.FromUserID.String, ev.EvidenceID),
			ev.ID,
		)
		return s.dispatcher.Dispatch(ctx, tx, []model.Notification{n})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Передача улики завершена",
		slog.String("event_id", eventID),
		slog.String("status", string(target)),
	)
	return resolved, nil
}

func transferWord(status lifecycle.Status) string {
	if status == lifecycle.CustodyCompleted {
		return "Accepted"
	}
	return "Rejected"
}
