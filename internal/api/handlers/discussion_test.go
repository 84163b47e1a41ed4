package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/service"
)

func TestComments(t *testing.T) {
	var gotContent string
	h := newTestHandler(Services{Comments: &mockCommentService{
		listCommentsFn: func(_ context.Context, _ string) ([]*model.Comment, error) {
			return []*model.Comment{{ID: "m1", Content: "first"}, {ID: "m2", Content: "second"}}, nil
		},
		addCommentFn: func(_ context.Context, p model.Principal, evID, content string) (*model.Comment, error) {
			gotContent = content
			return &model.Comment{ID: "m3", EvidenceID: evID, UserID: p.ID, Content: content}, nil
		},
		deleteFn: func(_ context.Context, p model.Principal, _, commentID string) error {
			if p.ID != officer.ID && !rbac.IsElevated(p.Role) {
				return svcErr(service.ErrForbidden, "You can only delete your own comments")
			}
			return nil
		},
	}})

	t.Run("список", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListComments(rec, newRequest(http.MethodGet, "/api/v1/evidence/e1/comments", "", &officer, "id", "e1"))
		if body := decodeBody[[]map[string]any](t, rec); len(body) != 2 || body[0]["content"] != "first" {
			t.Errorf("тело = %v", body)
		}
	})

	t.Run("добавление", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.AddComment(rec, newRequest(http.MethodPost, "/api/v1/evidence/e1/comments", `{"content":"Chain verified"}`, &officer, "id", "e1"))
		if rec.Code != http.StatusCreated || gotContent != "Chain verified" {
			t.Errorf("статус = %d, content = %q", rec.Code, gotContent)
		}
	})

	t.Run("удаление своего", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.DeleteComment(rec, newRequest(http.MethodDelete, "/api/v1/evidence/e1/comments/m1", "", &officer, "id", "e1", "commentId", "m1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, ожидается 200", rec.Code)
		}
		if body := rec.Body.String(); body != "{\"success\":true}\n" {
			t.Errorf("тело = %q", body)
		}
	})

	t.Run("удаление чужого", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.DeleteComment(rec, newRequest(http.MethodDelete, "/api/v1/evidence/e1/comments/m1", "", &lawyer, "id", "e1", "commentId", "m1"))
		if rec.Code != http.StatusForbidden {
			t.Errorf("статус = %d, ожидается 403", rec.Code)
		}
	})
}

func TestSubmitLabResult(t *testing.T) {
	var got service.LabResultInput
	h := newTestHandler(Services{Comments: &mockCommentService{
		submitLabFn: func(_ context.Context, _ model.Principal, evID string, in service.LabResultInput) (*model.LabResult, error) {
			got = in
			if evID == "missing" {
				return nil, svcErr(service.ErrNotFound, "Evidence not found")
			}
			return &model.LabResult{ID: "l1", EvidenceID: evID, Title: in.Title}, nil
		},
	}})

	rec := httptest.NewRecorder()
	h.SubmitLabResult(rec, newRequest(http.MethodPost, "/api/v1/evidence/e1/lab-results",
		`{"title":"DNA","summary":"Match","findings":"Locus 7"}`, &officer, "id", "e1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидается 201", rec.Code)
	}
	if got.Title != "DNA" || got.Summary != "Match" || got.Findings != "Locus 7" {
		t.Errorf("input = %+v", got)
	}

	rec = httptest.NewRecorder()
	h.SubmitLabResult(rec, newRequest(http.MethodPost, "/api/v1/evidence/missing/lab-results", `{"title":"x","summary":"y"}`, &officer, "id", "missing"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус = %d, ожидается 404", rec.Code)
	}
}

func TestAccessRequests(t *testing.T) {
	var gotStatus, gotNotes, gotRequestID string
	h := newTestHandler(Services{AccessRequests: &mockAccessRequestService{
		createFn: func(_ context.Context, p model.Principal, evID, reason string) (*model.AccessRequest, error) {
			if reason == "" {
				return nil, svcErr(service.ErrValidation, "Reason is required")
			}
			return &model.AccessRequest{ID: "r1", EvidenceID: evID, RequesterID: p.ID, Reason: reason, Status: "pending"}, nil
		},
		reviewFn: func(_ context.Context, _ model.Principal, _, requestID, status, notes string) (*model.AccessRequest, error) {
			gotRequestID, gotStatus, gotNotes = requestID, status, notes
			if requestID == "done" {
				return nil, svcErr(service.ErrConflict, "Access request has already been reviewed")
			}
			return &model.AccessRequest{ID: requestID, Status: status}, nil
		},
	}})

	t.Run("создание", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.CreateAccessRequest(rec, newRequest(http.MethodPost, "/api/v1/evidence/e1/requests", `{"reason":"Defence review"}`, &lawyer, "id", "e1"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("статус = %d, ожидается 201", rec.Code)
		}
		if body := decodeBody[map[string]any](t, rec); body["status"] != "pending" || body["requesterId"] != lawyer.ID {
			t.Errorf("тело = %v", body)
		}
	})

	t.Run("без причины", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.CreateAccessRequest(rec, newRequest(http.MethodPost, "/api/v1/evidence/e1/requests", `{}`, &lawyer, "id", "e1"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("статус = %d, ожидается 400", rec.Code)
		}
		if body := decodeBody[map[string]string](t, rec); body["error"] != "Reason is required" {
			t.Errorf("error = %q", body["error"])
		}
	})

	t.Run("рассмотрение", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ReviewAccessRequest(rec, newRequest(http.MethodPut, "/api/v1/evidence/e1/requests/r1",
			`{"status":"approved","notes":"ok"}`, &head, "id", "e1", "requestId", "r1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d, ожидается 200", rec.Code)
		}
		if gotRequestID != "r1" || gotStatus != "approved" || gotNotes != "ok" {
			t.Errorf("Review(%q, %q, %q)", gotRequestID, gotStatus, gotNotes)
		}
	})

	t.Run("заметки в поле reviewNotes", func(t *testing.T) {
		for _, body := range []string{
			`{"status":"denied","reviewNotes":"chain broken"}`,
			`{"status":"denied","notes":"chain broken"}`,
		} {
			gotNotes = ""
			rec := httptest.NewRecorder()
			h.ReviewAccessRequest(rec, newRequest(http.MethodPut, "/api/v1/evidence/e1/requests/r1",
				body, &head, "id", "e1", "requestId", "r1"))
			if rec.Code != http.StatusOK {
				t.Fatalf("%s: статус = %d, ожидается 200", body, rec.Code)
			}
			if gotNotes != "chain broken" {
				t.Errorf("%s: notes = %q, ожидается %q", body, gotNotes, "chain broken")
			}
		}
	})

	t.Run("повторное рассмотрение", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ReviewAccessRequest(rec, newRequest(http.MethodPut, "/api/v1/evidence/e1/requests/done",
			`{"status":"denied"}`, &head, "id", "e1", "requestId", "done"))
		if rec.Code != http.StatusConflict {
			t.Errorf("статус = %d, ожидается 409", rec.Code)
		}
	})
}
