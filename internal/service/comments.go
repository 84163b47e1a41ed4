// comments.go — комментарии и результаты экспертиз.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// LabResultInput — данные результата экспертизы.
type LabResultInput struct {
	Title    string
	Summary  string
	Findings string
}

// CommentService — обсуждение улик и результаты экспертиз.
type CommentService struct {
	store  *Store
	logger *slog.Logger
}

// NewCommentService создаёт сервис комментариев.
func NewCommentService(store *Store, logger *slog.Logger) *CommentService {
	return &CommentService{
		store:  store,
		logger: logger.With(slog.String("component", "comment_service")),
	}
}

// ListComments возвращает комментарии улики, старые первыми.
func (s *CommentService) ListComments(ctx context.Context, evidenceID string) ([]*model.Comment, error) {
	comments, err := s.store.Repos().Comments.ListByEvidence(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("список комментариев: %w", err)
	}
	return comments, nil
}

// AddComment добавляет комментарий.
func (s *CommentService) AddComment(ctx context.Context, p model.Principal, evidenceID, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError("Comment content is required")
	}

	c := &model.Comment{
		ID:         uuid.New().String(),
		EvidenceID: evidenceID,
		UserID:     p.ID,
		Content:    content,
	}
	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		e, err := r.Evidence.GetByID(ctx, evidenceID)
		if err != nil {
			return repoError(err, "получение улики", "Evidence not found")
		}
		if err := r.Comments.Create(ctx, c); err != nil {
			return err
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionCommented, model.EntityEvidence, e.ID, e.Description))
	})
	if err != nil {
		return nil, err
	}

	created, err := s.store.Repos().Comments.GetByID(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("получение комментария: %w", err)
	}
	return created, nil
}

// DeleteComment удаляет комментарий. Разрешено автору и руководителям.
func (s *CommentService) DeleteComment(ctx context.Context, p model.Principal, evidenceID, commentID string) error {
	return s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		c, err := r.Comments.GetByID(ctx, commentID)
		if err != nil {
			return repoError(err, "получение комментария", "Comment not found")
		}
		if c.EvidenceID != evidenceID {
			return notFoundError("Comment not found")
		}
		if c.UserID != p.ID && !rbac.IsElevated(p.Role) {
			return forbiddenError("You can only delete your own comments")
		}
		if err := r.Comments.Delete(ctx, commentID); err != nil {
			return repoError(err, "удаление комментария", "Comment not found")
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionDeletedComment, model.EntityEvidence, evidenceID, ""))
	})
}

// ListLabResults возвращает результаты экспертиз улики, новые первыми.
func (s *CommentService) ListLabResults(ctx context.Context, evidenceID string) ([]*model.LabResult, error) {
	results, err := s.store.Repos().LabResults.ListByEvidence(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("список результатов экспертиз: %w", err)
	}
	return results, nil
}

// SubmitLabResult сохраняет результат экспертизы. Результат неизменяем.
func (s *CommentService) SubmitLabResult(ctx context.Context, p model.Principal, evidenceID string, in LabResultInput) (*model.LabResult, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	if in.Title == "" || in.Summary == "" {
		return nil, validationError("Title and summary are required")
	}

	lr := &model.LabResult{
		ID:            uuid.New().String(),
		EvidenceID:    evidenceID,
		SubmittedByID: p.ID,
		Title:         in.Title,
		Summary:       in.Summary,
		Submitter:     &model.UserSummary{ID: p.ID, Username: p.Username, Role: p.Role},
	}
	if f := strings.TrimSpace(in.Findings); f != "" {
		lr.Findings.SetValid(f)
	}

	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if _, err := r.Evidence.GetByID(ctx, evidenceID); err != nil {
			return repoError(err, "получение улики", "Evidence not found")
		}
		if err := r.LabResults.Create(ctx, lr); err != nil {
			return err
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionSubmittedLabResult, model.EntityEvidence, evidenceID, lr.Title))
	})
	if err != nil {
		return nil, err
	}
	return lr, nil
}
