// evidence.go — регистрация улик, вложения, срок хранения, ограничение
// доступа по ролям, QR-код и отчёт о цепочке хранения.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/hashicorp/go-set/v2"
	"github.com/jackc/pgx/v5"
	"github.com/skip2/go-qrcode"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/filestore"
	"github.com/bigkaa/blockevidence/internal/report"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// qrSize — сторона PNG QR-кода в пикселях.
const qrSize = 256

// CacheInvalidator сбрасывает кэшированные результаты верификации улики.
type CacheInvalidator interface {
	InvalidateEvidence(evidenceID string)
}

// CreateEvidenceInput — данные регистрации улики.
type CreateEvidenceInput struct {
	CaseID         string
	CrimeBoxID     string
	Type           string
	Description    string
	Location       string
	CollectionDate time.Time
	Status         string
	Tags           []string
}

// UploadInput — загружаемый файл улики.
type UploadInput struct {
	Reader   io.Reader
	FileName string
	MimeType string
}

// QRResult — QR-код ссылки верификации.
type QRResult struct {
	DataURL   string
	VerifyURL string
	Hash      string
	PNG       []byte
}

// EvidenceService — работа с уликами.
type EvidenceService struct {
	store     *Store
	files     *filestore.FileStore
	publicURL string
	cache     CacheInvalidator
	now       func() time.Time
	logger    *slog.Logger
}

// NewEvidenceService создаёт сервис улик. publicURL — адрес клиентского
// приложения для ссылок верификации.
func NewEvidenceService(
	store *Store,
	files *filestore.FileStore,
	publicURL string,
	cache CacheInvalidator,
	logger *slog.Logger,
) *EvidenceService {
	return &EvidenceService{
		store:     store,
		files:     files,
		publicURL: strings.TrimRight(publicURL, "/"),
		cache:     cache,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "evidence_service")),
	}
}

// Create регистрирует улику. Собравший и текущий хранитель — вызывающий.
func (s *EvidenceService) Create(ctx context.Context, p model.Principal, in CreateEvidenceInput) (*model.Evidence, error) {
	if err := requirePermission(p, rbac.PermRegisterEvidence); err != nil {
		return nil, err
	}

	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	switch {
	case !model.IsValidEvidenceType(in.Type):
		return nil, validationError("Type must be one of physical, digital, testimonial")
	case in.Description == "":
		return nil, validationError("Description is required")
	case in.Location == "":
		return nil, validationError("Location is required")
	case in.CollectionDate.IsZero():
		return nil, validationError("Collection date is required")
	}

	e := &model.Evidence{
		ID:                 uuid.New().String(),
		Type:               in.Type,
		Description:        in.Description,
		Location:           in.Location,
		CollectionDate:     in.CollectionDate.UTC(),
		Status:             strings.TrimSpace(in.Status),
		CollectedByID:      p.ID,
		CurrentCustodianID: p.ID,
		Tags:               normalizeTags(in.Tags),
	}
	if e.Status == "" {
		e.Status = model.DefaultEvidenceStatus
	}

	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if id := strings.TrimSpace(in.CaseID); id != "" {
			if _, err := uuid.Parse(id); err != nil {
				return notFoundError("Case not found")
			}
			if _, err := r.Cases.GetByID(ctx, id); err != nil {
				return repoError(err, "получение дела", "Case not found")
			}
			e.CaseID.SetValid(id)
		}
		if id := strings.TrimSpace(in.CrimeBoxID); id != "" {
			if _, err := uuid.Parse(id); err != nil {
				return notFoundError("Crime box not found")
			}
			if _, err := r.CrimeBoxes.GetByID(ctx, id); err != nil {
				return repoError(err, "получение crime box", "Crime box not found")
			}
			e.CrimeBoxID.SetValid(id)
		}
		if err := r.Evidence.Create(ctx, e); err != nil {
			return fmt.Errorf("регистрация улики: %w", err)
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionRegisteredEvidence, model.EntityEvidence, e.ID, e.Description))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Улика зарегистрирована",
		slog.String("evidence_id", e.ID),
		slog.String("user_id", p.ID),
	)
	return s.Get(ctx, p, e.ID)
}

// List возвращает улики по фильтру. Улики, недоступные вызывающему,
// не попадают в список.
func (s *EvidenceService) List(ctx context.Context, p model.Principal, filter model.EvidenceFilter) ([]*model.Evidence, error) {
	items, err := s.store.Repos().Evidence.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("список улик: %w", err)
	}

	result := make([]*model.Evidence, 0, len(items))
	for _, e := range items {
		ok, err := s.canRead(ctx, p, e)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, e)
		}
	}
	return result, nil
}

// Get возвращает улику с файлами и журналом передач.
func (s *EvidenceService) Get(ctx context.Context, p model.Principal, id string) (*model.Evidence, error) {
	e, err := s.readable(ctx, p, id)
	if err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	files, err := repos.Files.ListByEvidence(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("файлы улики: %w", err)
	}
	events, err := repos.Custody.ListByEvidence(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("журнал передач: %w", err)
	}

	e.Files = make([]model.EvidenceFile, 0, len(files))
	for _, f := range files {
		e.Files = append(e.Files, *f)
	}
	e.CustodyEvents = make([]model.CustodyEvent, 0, len(events))
	for _, ev := range events {
		e.CustodyEvents = append(e.CustodyEvents, *ev)
	}
	return e, nil
}

// Upload сохраняет файл улики на диск, регистрирует его метаданные
// и устанавливает хеш целостности улики, если он ещё не задан.
func (s *EvidenceService) Upload(ctx context.Context, p model.Principal, id string, in UploadInput) (*model.EvidenceFile, error) {
	if err := requirePermission(p, rbac.PermRegisterEvidence); err != nil {
		return nil, err
	}
	if _, err := s.readable(ctx, p, id); err != nil {
		return nil, err
	}

	saved, err := s.files.SaveFile(in.Reader, id, in.FileName)
	if err != nil {
		if errors.Is(err, filestore.ErrTooLarge) {
			return nil, validationError("File exceeds the maximum upload size")
		}
		return nil, fmt.Errorf("сохранение файла улики: %w", err)
	}

	f := &model.EvidenceFile{
		ID:          uuid.New().String(),
		EvidenceID:  id,
		FileName:    in.FileName,
		FileSize:    saved.Size,
		MimeType:    in.MimeType,
		SHA256Hash:  saved.Checksum,
		StoragePath: saved.StoragePath,
	}
	if f.MimeType == "" {
		f.MimeType = "application/octet-stream"
	}
	f.UploadedByID.SetValid(p.ID)

	err = s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if err := r.Files.Create(ctx, f); err != nil {
			return err
		}
		if err := r.Evidence.SetFileHashIfEmpty(ctx, id, f.SHA256Hash); err != nil {
			return err
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionUploadedFile, model.EntityEvidence, id, f.FileName))
	})
	if err != nil {
		if delErr := s.files.DeleteFile(saved.StoragePath); delErr != nil {
			s.logger.Warn("Не удалось удалить файл после ошибки регистрации",
				slog.String("path", saved.StoragePath),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("регистрация файла улики: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateEvidence(id)
	}

	s.logger.Info("Файл улики загружен",
		slog.String("evidence_id", id),
		slog.String("file_id", f.ID),
		slog.Int64("size", f.FileSize),
	)
	return f, nil
}

// OpenFile открывает сохранённый файл улики. Вызывающий закрывает файл.
func (s *EvidenceService) OpenFile(ctx context.Context, p model.Principal, id, fileID string) (*model.EvidenceFile, *os.File, error) {
	if _, err := s.readable(ctx, p, id); err != nil {
		return nil, nil, err
	}
	f, err := s.store.Repos().Files.GetByID(ctx, id, fileID)
	if err != nil {
		return nil, nil, repoError(err, "получение файла улики", "File not found")
	}

	file, err := s.files.ReadFile(f.StoragePath)
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) {
			s.logger.Error("Файл улики отсутствует в хранилище",
				slog.String("evidence_id", id),
				slog.String("file_id", fileID),
			)
			return nil, nil, notFoundError("File content is missing")
		}
		return nil, nil, fmt.Errorf("чтение файла улики: %w", err)
	}
	return f, file, nil
}

// SetRetention перезаписывает срок и политику хранения.
// Пустые значения очищают поля.
func (s *EvidenceService) SetRetention(ctx context.Context, p model.Principal, id string, deadline null.Time, policy null.String) (*model.Evidence, error) {
	if _, err := s.manageable(ctx, p, id); err != nil {
		return nil, err
	}
	if policy.Valid && strings.TrimSpace(policy.String) == "" {
		policy = null.String{}
	}
	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if err := r.Evidence.SetRetention(ctx, id, deadline, policy); err != nil {
			return err
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionUpdatedRetention, model.EntityEvidence, id, policy.ValueOrZero()))
	})
	if err != nil {
		return nil, repoError(err, "обновление срока хранения", "Evidence not found")
	}
	e, err := s.store.Repos().Evidence.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "получение улики", "Evidence not found")
	}
	return e, nil
}

// AllowedRoles возвращает список разрешённых ролей (nil — без ограничений).
func (s *EvidenceService) AllowedRoles(ctx context.Context, p model.Principal, id string) ([]string, error) {
	e, err := s.readable(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return e.AllowedRoles, nil
}

// SetAllowedRoles перезаписывает список разрешённых ролей. Дубликаты
// схлопываются с сохранением порядка; nil снимает ограничение.
func (s *EvidenceService) SetAllowedRoles(ctx context.Context, p model.Principal, id string, roles []string) ([]string, error) {
	if _, err := s.manageable(ctx, p, id); err != nil {
		return nil, err
	}
	var normalized []string
	if roles != nil {
		var err error
		if normalized, err = rbac.NormalizeRoles(roles); err != nil {
			return nil, validationError(fmt.Sprintf("Invalid roles: %v", err))
		}
	}

	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		if err := r.Evidence.SetAllowedRoles(ctx, id, normalized); err != nil {
			return err
		}
		return r.Activity.Create(ctx, activityEntry(p, model.ActionUpdatedAllowedRoles, model.EntityEvidence, id, strings.Join(normalized, ",")))
	})
	if err != nil {
		return nil, repoError(err, "обновление разрешённых ролей", "Evidence not found")
	}
	return normalized, nil
}

// QR формирует QR-код ссылки верификации. Хеш: хеш целостности
// улики, иначе хеш первого файла, иначе идентификатор улики.
func (s *EvidenceService) QR(ctx context.Context, p model.Principal, id string) (*QRResult, error) {
	e, err := s.readable(ctx, p, id)
	if err != nil {
		return nil, err
	}

	hash := e.FileHash.ValueOrZero()
	if hash == "" {
		files, err := s.store.Repos().Files.ListByEvidence(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("файлы улики: %w", err)
		}
		if len(files) > 0 {
			hash = files[0].SHA256Hash
		}
	}
	if hash == "" {
		hash = e.ID
	}

	verifyURL := s.publicURL + "/verify/" + hash
	png, err := qrcode.Encode(verifyURL, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("формирование QR-кода: %w", err)
	}

	return &QRResult{
		DataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		VerifyURL: verifyURL,
		Hash:      hash,
		PNG:       png,
	}, nil
}

// CustodyReport формирует PDF-отчёт о цепочке хранения.
func (s *EvidenceService) CustodyReport(ctx context.Context, p model.Principal, id string) ([]byte, error) {
	e, err := s.readable(ctx, p, id)
	if err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	files, err := repos.Files.ListByEvidence(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("файлы улики: %w", err)
	}
	events, err := repos.Custody.ListByEvidence(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("журнал передач: %w", err)
	}
	requests, err := repos.AccessRequests.ListByEvidence(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("запросы доступа: %w", err)
	}

	return report.Custody(report.CustodyData{
		Evidence:       e,
		Files:          files,
		CustodyEvents:  events,
		AccessRequests: requests,
		GeneratedBy:    p.Username,
		GeneratedAt:    s.now(),
	})
}

// readable загружает улику и проверяет право чтения.
func (s *EvidenceService) readable(ctx context.Context, p model.Principal, id string) (*model.Evidence, error) {
	e, err := s.store.Repos().Evidence.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "получение улики", "Evidence not found")
	}
	ok, err := s.canRead(ctx, p, e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbiddenError("Your role is not allowed to access this evidence")
	}
	return e, nil
}

// manageable загружает улику и проверяет право менять её ограничения
// (срок хранения, разрешённые роли): роль руководителя, либо право
// register_evidence у собравшего или текущего хранителя. Одобренный
// запрос доступа даёт только чтение.
func (s *EvidenceService) manageable(ctx context.Context, p model.Principal, id string) (*model.Evidence, error) {
	e, err := s.readable(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if rbac.IsElevated(p.Role) {
		return e, nil
	}
	if rbac.HasPermission(p.Role, rbac.PermRegisterEvidence) &&
		(e.CollectedByID == p.ID || e.CurrentCustodianID == p.ID) {
		return e, nil
	}
	return nil, forbiddenError("You are not allowed to change access settings of this evidence")
}

// canRead — доступ к улике: ограничение не задано, роль в списке,
// роль руководителя, собравший, текущий хранитель или одобренный
// запрос доступа.
func (s *EvidenceService) canRead(ctx context.Context, p model.Principal, e *model.Evidence) (bool, error) {
	if rbac.RoleAllowed(p.Role, e.AllowedRoles) || rbac.IsElevated(p.Role) ||
		e.CollectedByID == p.ID || e.CurrentCustodianID == p.ID {
		return true, nil
	}
	ok, err := s.store.Repos().AccessRequests.HasApproved(ctx, e.ID, p.ID)
	if err != nil {
		return false, fmt.Errorf("проверка запроса доступа: %w", err)
	}
	return ok, nil
}

// normalizeTags убирает пустые теги и дубликаты.
func normalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := set.New[string](len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && seen.Insert(t) {
			result = append(result, t)
		}
	}
	return result
}
