package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/service"
)

func TestCustodyHandlers(t *testing.T) {
	var gotTo, gotReason string
	custody := &mockCustodyService{
		requestFn: func(_ context.Context, p model.Principal, evID, toUserID, reason string) (*model.CustodyEvent, error) {
			gotTo, gotReason = toUserID, reason
			if toUserID == p.ID {
				return nil, svcErr(service.ErrValidation, "Cannot transfer custody to yourself")
			}
			return &model.CustodyEvent{ID: "ev1", EvidenceID: evID, ToUserID: toUserID, Status: "pending"}, nil
		},
		acceptFn: func(_ context.Context, _ model.Principal, eventID string) (*model.CustodyEvent, error) {
			if eventID == "ev-done" {
				return nil, svcErr(service.ErrConflict, "Transfer is no longer pending")
			}
			return &model.CustodyEvent{ID: eventID, Status: "completed"}, nil
		},
		rejectFn: func(_ context.Context, _ model.Principal, eventID string) (*model.CustodyEvent, error) {
			return &model.CustodyEvent{ID: eventID, Status: "rejected"}, nil
		},
		listPendingFn: func(_ context.Context, _ model.Principal) ([]*model.CustodyEvent, error) {
			return []*model.CustodyEvent{{ID: "ev1", Status: "pending"}}, nil
		},
	}
	h := newTestHandler(Services{Custody: custody})

	t.Run("запрос передачи", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.RequestTransfer(rec, newRequest(http.MethodPost, "/api/v1/custody/evidence/e1/transfer",
			`{"toUserId":"`+head.ID+`","reason":"Lab analysis"}`, &officer, "id", "e1"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("статус = %d, ожидается 201", rec.Code)
		}
		if gotTo != head.ID || gotReason != "Lab analysis" {
			t.Errorf("RequestTransfer(%q, %q)", gotTo, gotReason)
		}
	})

	t.Run("передача себе", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.RequestTransfer(rec, newRequest(http.MethodPost, "/api/v1/custody/evidence/e1/transfer",
			`{"toUserId":"`+officer.ID+`","reason":"x"}`, &officer, "id", "e1"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("статус = %d, ожидается 400", rec.Code)
		}
	})

	t.Run("принятие и повтор", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.AcceptTransfer(rec, newRequest(http.MethodPut, "/api/v1/custody/events/ev1/accept", "", &head, "eventId", "ev1"))
		if body := decodeBody[map[string]any](t, rec); body["status"] != "completed" {
			t.Errorf("тело = %v", body)
		}

		rec = httptest.NewRecorder()
		h.AcceptTransfer(rec, newRequest(http.MethodPut, "/api/v1/custody/events/ev-done/accept", "", &head, "eventId", "ev-done"))
		if rec.Code != http.StatusConflict {
			t.Errorf("статус = %d, ожидается 409", rec.Code)
		}
	})

	t.Run("отклонение", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.RejectTransfer(rec, newRequest(http.MethodPut, "/api/v1/custody/events/ev1/reject", "", &head, "eventId", "ev1"))
		if body := decodeBody[map[string]any](t, rec); body["status"] != "rejected" {
			t.Errorf("тело = %v", body)
		}
	})

	t.Run("ожидающие", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListPendingTransfers(rec, newRequest(http.MethodGet, "/api/v1/custody/pending", "", &head))
		if body := decodeBody[[]map[string]any](t, rec); len(body) != 1 {
			t.Errorf("тело = %v", body)
		}
	})
}
