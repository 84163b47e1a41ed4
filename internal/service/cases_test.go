package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/repository"
)

func TestCaseService_Create(t *testing.T) {
	repos := newTestRepos()
	var stored *model.Case
	repos.cases.createFn = func(_ context.Context, c *model.Case) error {
		stored = c
		return nil
	}
	svc := NewCaseService(repos.store(), testLogger())

	c, err := svc.Create(context.Background(), officer, CreateCaseInput{Title: "  Ограбление склада  "})
	if err != nil {
		t.Fatalf("Create() вернул ошибку: %v", err)
	}
	if stored == nil || stored.ID != c.ID {
		t.Fatal("дело не передано в репозиторий")
	}
	if c.Title != "Ограбление склада" {
		t.Errorf("Title = %q, ожидается без пробелов", c.Title)
	}
	if c.Status != model.CaseOpen {
		t.Errorf("Status = %q, ожидается open", c.Status)
	}
	if c.CreatedByID != officer.ID {
		t.Errorf("CreatedByID = %q, ожидается %q", c.CreatedByID, officer.ID)
	}

	if len(repos.activity.created) != 1 {
		t.Fatalf("записей журнала = %d, ожидается 1", len(repos.activity.created))
	}
	a := repos.activity.created[0]
	if a.Action != model.ActionCreatedCase || a.EntityType != model.EntityCase || a.EntityID != c.ID {
		t.Errorf("запись журнала = %+v", a)
	}
	if a.ActorID != officer.ID {
		t.Errorf("ActorID = %q, ожидается %q", a.ActorID, officer.ID)
	}
}

func TestCaseService_Create_Validation(t *testing.T) {
	svc := NewCaseService(newTestRepos().store(), testLogger())

	tests := []struct {
		name string
		p    model.Principal
		in   CreateCaseInput
		kind error
	}{
		{"пустое название", officer, CreateCaseInput{Title: "   "}, ErrValidation},
		{"неизвестный статус", officer, CreateCaseInput{Title: "Дело", Status: "archived"}, ErrValidation},
		{"роль без права", lawyer, CreateCaseInput{Title: "Дело"}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.p, tt.in)
			if !errors.Is(err, tt.kind) {
				t.Errorf("Create() ошибка = %v, ожидается %v", err, tt.kind)
			}
		})
	}
}

func TestCaseService_Update(t *testing.T) {
	repos := newTestRepos()
	var got model.CaseUpdate
	repos.cases.updateFn = func(_ context.Context, _ string, upd model.CaseUpdate) error {
		got = upd
		return nil
	}
	repos.cases.getByIDFn = func(_ context.Context, id string) (*model.Case, error) {
		return &model.Case{ID: id, Title: "Дело", Status: model.CaseClosed}, nil
	}
	svc := NewCaseService(repos.store(), testLogger())

	upd := model.CaseUpdate{
		Status:      model.PatchOf(model.CaseClosed),
		Description: model.PatchNull[string](),
	}
	c, err := svc.Update(context.Background(), head, "case-1", upd)
	if err != nil {
		t.Fatalf("Update() вернул ошибку: %v", err)
	}
	if c.Status != model.CaseClosed {
		t.Errorf("Status = %q, ожидается closed", c.Status)
	}
	if got.Title.Set {
		t.Error("отсутствующее название не должно передаваться в репозиторий")
	}
	if !got.Description.Set || !got.Description.Null {
		t.Error("явный null описания должен передаваться в репозиторий")
	}
	if len(repos.activity.created) != 1 || repos.activity.created[0].Action != model.ActionUpdatedCase {
		t.Errorf("журнал = %+v, ожидается updated_case", repos.activity.created)
	}
}

func TestCaseService_Update_NullTitle(t *testing.T) {
	repos := newTestRepos()
	called := false
	repos.cases.updateFn = func(context.Context, string, model.CaseUpdate) error {
		called = true
		return nil
	}
	svc := NewCaseService(repos.store(), testLogger())

	_, err := svc.Update(context.Background(), officer, "case-1", model.CaseUpdate{Title: model.PatchNull[string]()})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Update() ошибка = %v, ожидается ErrValidation", err)
	}
	if called {
		t.Error("репозиторий не должен вызываться при невалидном обновлении")
	}
}

func TestCaseService_Update_NotFound(t *testing.T) {
	repos := newTestRepos()
	repos.cases.updateFn = func(context.Context, string, model.CaseUpdate) error {
		return repository.ErrNotFound
	}
	svc := NewCaseService(repos.store(), testLogger())

	_, err := svc.Update(context.Background(), officer, "missing", model.CaseUpdate{Status: model.PatchOf(model.CaseOpen)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() ошибка = %v, ожидается ErrNotFound", err)
	}
	if msg, _ := PublicMessage(err); msg != "Case not found" {
		t.Errorf("сообщение = %q, ожидается %q", msg, "Case not found")
	}
}

func TestCaseService_LinkCrimeBox_InvalidID(t *testing.T) {
	svc := NewCaseService(newTestRepos().store(), testLogger())

	_, err := svc.LinkCrimeBox(context.Background(), officer, "case-1", "not-a-uuid")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("LinkCrimeBox() ошибка = %v, ожидается ErrNotFound", err)
	}
}

func TestCaseService_CreateCrimeBox(t *testing.T) {
	repos := newTestRepos()
	svc := NewCaseService(repos.store(), testLogger())

	if _, err := svc.CreateCrimeBox(context.Background(), officer, "Склад", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("CreateCrimeBox(officer) ошибка = %v, ожидается ErrForbidden", err)
	}

	box, err := svc.CreateCrimeBox(context.Background(), head, "Склад", "")
	if err != nil {
		t.Fatalf("CreateCrimeBox() вернул ошибку: %v", err)
	}
	if !strings.HasPrefix(box.PrivateKey, privateKeyPrefix) || len(box.PrivateKey) != len(privateKeyPrefix)+48 {
		t.Errorf("PrivateKey = %q, ожидается k_priv_ и 48 hex-символов", box.PrivateKey)
	}
	if !strings.HasPrefix(box.PublicKey, publicKeyPrefix) || len(box.PublicKey) != len(publicKeyPrefix)+48 {
		t.Errorf("PublicKey = %q, ожидается k_pub_ и 48 hex-символов", box.PublicKey)
	}
	if box.CaseRefID.Valid {
		t.Error("CaseRefID должен быть пустым без дела")
	}
}

func TestCaseService_JoinCrimeBox(t *testing.T) {
	box := &model.CrimeBox{ID: "box-1", Name: "Склад", PrivateKey: "k_priv_aa", PublicKey: "k_pub_bb"}
	repos := newTestRepos()
	repos.boxes.getByKeyFn = func(_ context.Context, key string) (*model.CrimeBox, error) {
		if key == box.PrivateKey || key == box.PublicKey {
			return box, nil
		}
		return nil, repository.ErrNotFound
	}
	svc := NewCaseService(repos.store(), testLogger())

	tests := []struct {
		key  string
		want string
	}{
		{"k_priv_aa", AccessReadWrite},
		{"k_pub_bb", AccessReadOnly},
	}
	for _, tt := range tests {
		res, err := svc.JoinCrimeBox(context.Background(), tt.key)
		if err != nil {
			t.Fatalf("JoinCrimeBox(%q) вернул ошибку: %v", tt.key, err)
		}
		if res.AccessLevel != tt.want {
			t.Errorf("JoinCrimeBox(%q).AccessLevel = %q, ожидается %q", tt.key, res.AccessLevel, tt.want)
		}
		if res.CrimeBox.ID != box.ID {
			t.Errorf("CrimeBox.ID = %q, ожидается %q", res.CrimeBox.ID, box.ID)
		}
	}

	if _, err := svc.JoinCrimeBox(context.Background(), "k_pub_zz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("JoinCrimeBox(неизвестный) ошибка = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.JoinCrimeBox(context.Background(), " "); !errors.Is(err, ErrValidation) {
		t.Errorf("JoinCrimeBox(пустой) ошибка = %v, ожидается ErrValidation", err)
	}
}
