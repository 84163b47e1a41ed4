// cases.go — дела и crime box.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// Уровни доступа при входе в crime box.
const (
	AccessReadWrite = "read-write"
	AccessReadOnly  = "read-only"
)

// Префиксы секретов crime box.
const (
	privateKeyPrefix = "k_priv_"
	publicKeyPrefix  = "k_pub_"
)

// CreateCaseInput — данные нового дела.
type CreateCaseInput struct {
	Title       string
	Description string
	Status      string
}

// JoinResult — результат входа в crime box по секрету.
type JoinResult struct {
	CrimeBox    model.CrimeBoxSummary
	AccessLevel string
}

// CaseService — управление делами и crime box.
type CaseService struct {
	store  *Store
	logger *slog.Logger
}

// NewCaseService создаёт сервис дел.
func NewCaseService(store *Store, logger *slog.Logger) *CaseService {
	return &CaseService{
		store:  store,
		logger: logger.With(slog.String("component", "case_service")),
	}
}

// List возвращает все дела, новые первыми.
func (s *CaseService) List(ctx context.Context) ([]*model.Case, error) {
	cases, err := s.store.Repos().Cases.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список дел: %w", err)
	}
	return cases, nil
}

// Get возвращает дело.
func (s *CaseService) Get(ctx context.Context, id string) (*model.Case, error) {
	c, err := s.store.Repos().Cases.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "получение дела", "Case not found")
	}
	return c, nil
}

// Create создаёт дело и запись журнала в одной транзакции.
func (s *CaseService) Create(ctx context.Context, p model.Principal, in CreateCaseInput) (*model.Case, error) {
	if err := requirePermission(p, rbac.PermRegisterEvidence); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationError("Title is required")
	}
	status := in.Status
	if status == "" {
		status = model.CaseOpen
	}
	if !model.IsValidCaseStatus(status) {
		return nil, validationError(fmt.Sprintf("Invalid case status %q", status))
	}

	c := &model.Case{
		ID:          uuid.New().String(),
		Title:       title,
		Status:      status,
		CreatedByID: p.ID,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		c.Description.SetValid(d)
	}

	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if err := r.Cases.Create(ctx, c); err != nil {
			return err
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionCreatedCase, model.EntityCase, c.ID, c.Title))
	})
	if err != nil {
		return nil, fmt.Errorf("создание дела: %w", err)
	}

	s.logger.Info("Дело создано",
		slog.String("case_id", c.ID),
		slog.String("user_id", p.ID),
	)
	return c, nil
}

// Update применяет частичное обновление дела. Отсутствующее поле
// не меняется; null допустим только для описания.
func (s *CaseService) Update(ctx context.Context, p model.Principal, id string, upd model.CaseUpdate) (*model.Case, error) {
	if err := requirePermission(p, rbac.PermRegisterEvidence); err != nil {
		return nil, err
	}

	if upd.Title.Set {
		if upd.Title.Null {
			return nil, validationError("Title cannot be null")
		}
		upd.Title.Value = strings.TrimSpace(upd.Title.Value)
		if upd.Title.Value == "" {
			return nil, validationError("Title cannot be empty")
		}
	}
	if upd.Status.Set {
		if upd.Status.Null {
			return nil, validationError("Status cannot be null")
		}
		if !model.IsValidCaseStatus(upd.Status.Value) {
			return nil, validationError(fmt.Sprintf("Invalid case status %q", upd.Status.Value))
		}
	}

	var updated *model.Case
	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if err := r.Cases.Update(ctx, id, upd); err != nil {
			return err
		}
		c, err := r.Cases.GetByID(ctx, id)
		if err != nil {
			return err
		}
		updated = c
		return r.Activity.Create(ctx, activityEntry(p, model.ActionUpdatedCase, model.EntityCase, c.ID, c.Title))
	})
	if err != nil {
		return nil, repoError(err, "обновление дела", "Case not found")
	}
	return updated, nil
}

// LinkCrimeBox привязывает crime box к делу. Повторная привязка
// перезаписывает предыдущую.
func (s *CaseService) LinkCrimeBox(ctx context.Context, p model.Principal, caseID, boxID string) (*model.CrimeBox, error) {
	if err := requirePermission(p, rbac.PermRegisterEvidence); err != nil {
		return nil, err
	}
	boxID = strings.TrimSpace(boxID)
	if boxID == "" {
		return nil, validationError("Crime box id is required")
	}
	if _, err := uuid.Parse(boxID); err != nil {
		return nil, notFoundError("Crime box not found")
	}

	var box *model.CrimeBox
	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		c, err := r.Cases.GetByID(ctx, caseID)
		if err != nil {
			return repoError(err, "получение дела", "Case not found")
		}
		if err := r.CrimeBoxes.LinkToCase(ctx, boxID, caseID); err != nil {
			return repoError(err, "привязка crime box", "Crime box not found")
		}
		if box, err = r.CrimeBoxes.GetByID(ctx, boxID); err != nil {
			return repoError(err, "получение crime box", "Crime box not found")
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionLinkedCrimeBox, model.EntityCase, c.ID, box.Name))
	})
	if err != nil {
		return nil, err
	}
	return box, nil
}

// CreateCrimeBox создаёт crime box с парой секретов. Секреты
// возвращаются вызывающему только здесь.
func (s *CaseService) CreateCrimeBox(ctx context.Context, p model.Principal, name, caseID string) (*model.CrimeBox, error) {
	if err := requirePermission(p, rbac.PermManageCrimeBoxes); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("Name is required")
	}

	privateKey, publicKey, err := GenerateCrimeBoxKeys()
	if err != nil {
		return nil, err
	}

	box := &model.CrimeBox{
		ID:         uuid.New().String(),
		Name:       name,
		PrivateKey: privateKey,
		PublicKey:  publicKey,
	}

	err = s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if caseID = strings.TrimSpace(caseID); caseID != "" {
			if _, err := uuid.Parse(caseID); err != nil {
				return notFoundError("Case not found")
			}
			if _, err := r.Cases.GetByID(ctx, caseID); err != nil {
				return repoError(err, "получение дела", "Case not found")
			}
			box.CaseRefID.SetValid(caseID)
		}
		if err := r.CrimeBoxes.Create(ctx, box); err != nil {
			return repoError(err, "создание crime box", "Crime box not found")
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionCreatedCrimeBox, model.EntityCrimeBox, box.ID, box.Name))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Crime box создан",
		slog.String("crime_box_id", box.ID),
		slog.String("user_id", p.ID),
	)
	return box, nil
}

// ListCrimeBoxes возвращает crime box без секретов.
func (s *CaseService) ListCrimeBoxes(ctx context.Context) ([]model.CrimeBoxSummary, error) {
	boxes, err := s.store.Repos().CrimeBoxes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список crime box: %w", err)
	}
	result := make([]model.CrimeBoxSummary, 0, len(boxes))
	for _, b := range boxes {
		result = append(result, b.Summary())
	}
	return result, nil
}

// JoinCrimeBox определяет crime box и уровень доступа по секрету.
// Состояние не сохраняется: доступ подтверждается только знанием секрета.
func (s *CaseService) JoinCrimeBox(ctx context.Context, key string) (*JoinResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, validationError("Key is required")
	}

	box, err := s.store.Repos().CrimeBoxes.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("Invalid crime box key")
		}
		return nil, fmt.Errorf("поиск crime box: %w", err)
	}

	level := AccessReadOnly
	if key == box.PrivateKey {
		level = AccessReadWrite
	}
	return &JoinResult{CrimeBox: box.Summary(), AccessLevel: level}, nil
}

// GenerateCrimeBoxKeys возвращает пару секретов crime box:
// приватный (чтение и запись) и публичный (только чтение).
func GenerateCrimeBoxKeys() (privateKey, publicKey string, err error) {
	if privateKey, err = generateKey(privateKeyPrefix); err != nil {
		return "", "", err
	}
	if publicKey, err = generateKey(publicKeyPrefix); err != nil {
		return "", "", err
	}
	return privateKey, publicKey, nil
}

// generateKey возвращает секрет crime box: префикс и 24 случайных байта в hex.
func generateKey(prefix string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("генерация секрета crime box: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
