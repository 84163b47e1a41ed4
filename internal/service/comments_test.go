package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/repository"
)

func TestCommentService_DeleteComment(t *testing.T) {
	tests := []struct {
		name string
		p    model.Principal
		ev   string
		kind error
	}{
		{"автор", officer, "ev-1", nil},
		{"руководитель", head, "ev-1", nil},
		{"посторонний", judge, "ev-1", ErrForbidden},
		{"чужая улика", officer, "ev-2", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := newTestRepos()
			repos.comments.getByIDFn = func(_ context.Context, id string) (*model.Comment, error) {
				return &model.Comment{ID: id, EvidenceID: "ev-1", UserID: officer.ID, Content: "Отпечатки"}, nil
			}
			deleted := false
			repos.comments.deleteFn = func(context.Context, string) error {
				deleted = true
				return nil
			}
			svc := NewCommentService(repos.store(), testLogger())

			err := svc.DeleteComment(context.Background(), tt.p, tt.ev, "c-1")
			if tt.kind == nil {
				if err != nil {
					t.Fatalf("DeleteComment() вернул ошибку: %v", err)
				}
				if !deleted {
					t.Error("комментарий не удалён")
				}
				if len(repos.activity.created) != 1 || repos.activity.created[0].Action != model.ActionDeletedComment {
					t.Errorf("журнал = %+v, ожидается deleted_comment", repos.activity.created)
				}
				return
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("DeleteComment() ошибка = %v, ожидается %v", err, tt.kind)
			}
			if deleted {
				t.Error("комментарий удалён без права")
			}
		})
	}
}

func TestCommentService_AddComment(t *testing.T) {
	repos := newTestRepos()
	repos.evidence.getByIDFn = func(_ context.Context, id string) (*model.Evidence, error) {
		return evidenceFixture(id), nil
	}
	var created *model.Comment
	repos.comments.createFn = func(_ context.Context, c *model.Comment) error {
		created = c
		return nil
	}
	repos.comments.getByIDFn = func(context.Context, string) (*model.Comment, error) {
		return created, nil
	}
	svc := NewCommentService(repos.store(), testLogger())

	c, err := svc.AddComment(context.Background(), judge, "ev-1", "  Нужна экспертиза  ")
	if err != nil {
		t.Fatalf("AddComment() вернул ошибку: %v", err)
	}
	if c.Content != "Нужна экспертиза" || c.UserID != judge.ID {
		t.Errorf("комментарий = %+v", c)
	}
	if _, err := svc.AddComment(context.Background(), judge, "ev-1", " "); !errors.Is(err, ErrValidation) {
		t.Errorf("AddComment(пустой) ошибка = %v, ожидается ErrValidation", err)
	}
}

func TestCommentService_SubmitLabResult(t *testing.T) {
	repos := newTestRepos()
	repos.evidence.getByIDFn = func(_ context.Context, id string) (*model.Evidence, error) {
		if id == "missing" {
			return nil, repository.ErrNotFound
		}
		return evidenceFixture(id), nil
	}
	svc := NewCommentService(repos.store(), testLogger())

	lr, err := svc.SubmitLabResult(context.Background(), officer, "ev-1", LabResultInput{
		Title:   "ДНК",
		Summary: "Совпадение не найдено",
	})
	if err != nil {
		t.Fatalf("SubmitLabResult() вернул ошибку: %v", err)
	}
	if lr.Findings.Valid {
		t.Error("Findings должен быть null без значения")
	}
	if lr.SubmittedByID != officer.ID {
		t.Errorf("SubmittedByID = %q, ожидается %q", lr.SubmittedByID, officer.ID)
	}

	if _, err := svc.SubmitLabResult(context.Background(), officer, "ev-1", LabResultInput{Title: "ДНК"}); !errors.Is(err, ErrValidation) {
		t.Errorf("SubmitLabResult(без резюме) ошибка = %v, ожидается ErrValidation", err)
	}
	if _, err := svc.SubmitLabResult(context.Background(), officer, "missing", LabResultInput{Title: "a", Summary: "b"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("SubmitLabResult(нет улики) ошибка = %v, ожидается ErrNotFound", err)
	}
}
