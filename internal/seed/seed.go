// Пакет seed — загрузка демонстрационных данных и очистка улик
// вне демонстрационного дела (команды blockevidence-admin seed и cleanup).
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/filestore"
	"github.com/bigkaa/blockevidence/internal/repository"
	"github.com/bigkaa/blockevidence/internal/service"
)

// DemoPassword — пароль демонстрационных учётных записей.
const DemoPassword = "Demo123!"

//go:embed demo.yaml
var demoYAML []byte

// User — демонстрационная учётная запись.
type User struct {
	Username    string `yaml:"username"`
	Email       string `yaml:"email"`
	FullName    string `yaml:"fullName"`
	BadgeNumber string `yaml:"badgeNumber"`
	Department  string `yaml:"department"`
	Role        string `yaml:"role"`
}

// Case — демонстрационное дело.
type Case struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	CreatedBy   string `yaml:"createdBy"`
}

// File — вложение демонстрационной улики.
type File struct {
	Name     string `yaml:"name"`
	MimeType string `yaml:"mimeType"`
	Content  string `yaml:"content"`
}

// Evidence — демонстрационная улика.
type Evidence struct {
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Location    string   `yaml:"location"`
	Status      string   `yaml:"status"`
	CollectedBy string   `yaml:"collectedBy"`
	Tags        []string `yaml:"tags"`
	File        *File    `yaml:"file"`
}

// Data — набор демонстрационных данных.
type Data struct {
	Users    []User `yaml:"users"`
	Case     Case   `yaml:"case"`
	CrimeBox struct {
		Name string `yaml:"name"`
	} `yaml:"crimeBox"`
	Evidence []Evidence `yaml:"evidence"`
}

// LoadDemo разбирает встроенные демонстрационные данные.
func LoadDemo() (*Data, error) {
	return Parse(demoYAML)
}

// Parse разбирает YAML с демонстрационными данными и проверяет ссылки
// между записями.
func Parse(raw []byte) (*Data, error) {
	var d Data
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("разбор демонстрационных данных: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Data) validate() error {
	known := make(map[string]bool, len(d.Users))
	for _, u := range d.Users {
		if u.Username == "" || u.Email == "" {
			return errors.New("демонстрационный пользователь без username или email")
		}
		if !rbac.IsValidRole(u.Role) {
			return fmt.Errorf("пользователь %s: неизвестная роль %q (допустимые: %s)", u.Username, u.Role, rbac.RoleList())
		}
		known[u.Username] = true
	}
	if d.Case.Title == "" {
		return errors.New("не задано название демонстрационного дела")
	}
	if !model.IsValidCaseStatus(d.Case.Status) {
		return fmt.Errorf("дело: недопустимый статус %q", d.Case.Status)
	}
	if !known[d.Case.CreatedBy] {
		return fmt.Errorf("дело: неизвестный автор %q", d.Case.CreatedBy)
	}
	for i, e := range d.Evidence {
		if !model.IsValidEvidenceType(e.Type) {
			return fmt.Errorf("улика #%d: недопустимый тип %q", i+1, e.Type)
		}
		if !known[e.CollectedBy] {
			return fmt.Errorf("улика #%d: неизвестный сотрудник %q", i+1, e.CollectedBy)
		}
	}
	return nil
}

// PasswordHasher — хеширование паролей (service.AuthService).
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// FileStore — запись и удаление файлов улик.
type FileStore interface {
	SaveFile(reader io.Reader, evidenceID, originalFilename string) (*filestore.SaveResult, error)
	DeleteFile(storagePath string) error
}

// Result — итог загрузки демонстрационных данных.
type Result struct {
	UsersCreated  int
	UsersExisting int
	CaseID        string
	CaseCreated   bool
	CrimeBox      *model.CrimeBox
	Evidence      int
}

// Seeder загружает демонстрационные данные.
type Seeder struct {
	store  *service.Store
	files  FileStore
	hasher PasswordHasher
	now    func() time.Time
	logger *slog.Logger
}

// New создаёт Seeder.
func New(store *service.Store, files FileStore, hasher PasswordHasher, logger *slog.Logger) *Seeder {
	return &Seeder{
		store:  store,
		files:  files,
		hasher: hasher,
		now:    time.Now,
		logger: logger.With(slog.String("component", "seed")),
	}
}

// Seed загружает данные. Пользователи сопоставляются по username и не
// перезаписываются. Если дело с таким названием уже есть, дело, crime box
// и улики повторно не создаются.
func (s *Seeder) Seed(ctx context.Context, d *Data) (*Result, error) {
	hash, err := s.hasher.HashPassword(DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("хеширование демонстрационного пароля: %w", err)
	}

	res := &Result{}
	users := make(map[string]*model.User, len(d.Users))
	var saved []string

	err = s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		for _, du := range d.Users {
			u, created, err := s.ensureUser(ctx, r, du, hash)
			if err != nil {
				return err
			}
			if created {
				res.UsersCreated++
			} else {
				res.UsersExisting++
			}
			users[du.Username] = u
		}

		existing, err := r.Cases.FindByTitle(ctx, d.Case.Title)
		switch {
		case err == nil:
			res.CaseID = existing.ID
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("поиск дела %q: %w", d.Case.Title, err)
		}

		author := users[d.Case.CreatedBy]
		c := &model.Case{
			ID:          uuid.New().String(),
			Title:       d.Case.Title,
			Description: null.NewString(d.Case.Description, d.Case.Description != ""),
			Status:      d.Case.Status,
			CreatedByID: author.ID,
		}
		if err := r.Cases.Create(ctx, c); err != nil {
			return fmt.Errorf("создание дела: %w", err)
		}
		res.CaseID, res.CaseCreated = c.ID, true

		box, err := s.createCrimeBox(ctx, r, d.CrimeBox.Name, c.ID)
		if err != nil {
			return err
		}
		res.CrimeBox = box

		for _, de := range d.Evidence {
			paths, err := s.createEvidence(ctx, r, de, c.ID, box.ID, users[de.CollectedBy])
			saved = append(saved, paths...)
			if err != nil {
				return err
			}
			res.Evidence++
		}
		return nil
	})
	if err != nil {
		s.removeFiles(saved)
		return nil, err
	}

	s.logger.Info("Демонстрационные данные загружены",
		slog.Int("users_created", res.UsersCreated),
		slog.Int("users_existing", res.UsersExisting),
		slog.String("case_id", res.CaseID),
		slog.Bool("case_created", res.CaseCreated),
		slog.Int("evidence", res.Evidence),
	)
	return res, nil
}

// ensureUser возвращает существующего пользователя или создаёт нового.
func (s *Seeder) ensureUser(ctx context.Context, r *repository.Repositories, du User, hash string) (*model.User, bool, error) {
	u, err := r.Users.GetByUsername(ctx, du.Username)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("поиск пользователя %s: %w", du.Username, err)
	}

	u = &model.User{
		ID:           uuid.New().String(),
		Username:     du.Username,
		Email:        strings.ToLower(du.Email),
		FullName:     du.FullName,
		Role:         du.Role,
		BadgeNumber:  null.NewString(du.BadgeNumber, du.BadgeNumber != ""),
		Department:   null.NewString(du.Department, du.Department != ""),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := r.Users.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("создание пользователя %s: %w", du.Username, err)
	}
	s.logger.Info("Демонстрационный пользователь создан",
		slog.String("username", u.Username),
		slog.String("role", u.Role),
	)
	return u, true, nil
}

func (s *Seeder) createCrimeBox(ctx context.Context, r *repository.Repositories, name, caseID string) (*model.CrimeBox, error) {
	privateKey, publicKey, err := service.GenerateCrimeBoxKeys()
	if err != nil {
		return nil, err
	}
	box := &model.CrimeBox{
		ID:         uuid.New().String(),
		Name:       name,
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		CaseRefID:  null.StringFrom(caseID),
	}
	if err := r.CrimeBoxes.Create(ctx, box); err != nil {
		return nil, fmt.Errorf("создание crime box: %w", err)
	}
	return box, nil
}

// createEvidence создаёт улику и её файл. Возвращает пути записанных
// файлов, чтобы удалить их при откате транзакции.
func (s *Seeder) createEvidence(
	ctx context.Context,
	r *repository.Repositories,
	de Evidence,
	caseID, boxID string,
	collector *model.User,
) ([]string, error) {
	e := &model.Evidence{
		ID:                 uuid.New().String(),
		CaseID:             null.StringFrom(caseID),
		CrimeBoxID:         null.StringFrom(boxID),
		Type:               de.Type,
		Description:        de.Description,
		Status:             de.Status,
		CollectionDate:     s.now().UTC(),
		Location:           de.Location,
		CollectedByID:      collector.ID,
		CurrentCustodianID: collector.ID,
		Tags:               de.Tags,
	}
	if e.Status == "" {
		e.Status = model.DefaultEvidenceStatus
	}
	if err := r.Evidence.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("создание улики %q: %w", de.Description, err)
	}

	if de.File == nil {
		return nil, nil
	}
	saved, err := s.files.SaveFile(strings.NewReader(de.File.Content), e.ID, de.File.Name)
	if err != nil {
		return nil, fmt.Errorf("сохранение файла %s: %w", de.File.Name, err)
	}
	paths := []string{saved.StoragePath}

	f := &model.EvidenceFile{
		ID:           uuid.New().String(),
		EvidenceID:   e.ID,
		FileName:     de.File.Name,
		FileSize:     saved.Size,
		MimeType:     de.File.MimeType,
		SHA256Hash:   saved.Checksum,
		StoragePath:  saved.StoragePath,
		UploadedByID: null.StringFrom(collector.ID),
	}
	if err := r.Files.Create(ctx, f); err != nil {
		return paths, fmt.Errorf("регистрация файла %s: %w", de.File.Name, err)
	}
	if err := r.Evidence.SetFileHashIfEmpty(ctx, e.ID, f.SHA256Hash); err != nil {
		return paths, fmt.Errorf("хеш улики %q: %w", de.Description, err)
	}
	return paths, nil
}

// CleanupResult — итог очистки.
type CleanupResult struct {
	CaseID           string
	EvidenceDeleted  int64
	FilesRemoved     int
	FilesRemoveFails int
}

// Cleanup удаляет улики, не относящиеся к делу keepCaseTitle, вместе со
// связанными записями и файлами. Если дело не найдено, ничего не удаляется.
func (s *Seeder) Cleanup(ctx context.Context, keepCaseTitle string) (*CleanupResult, error) {
	res := &CleanupResult{}
	var paths []string

	err := s.store.InTx(ctx, func(_ pgx.Tx, r *repository.Repositories) error {
		keep, err := r.Cases.FindByTitle(ctx, keepCaseTitle)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("дело %q не найдено, очистка отменена", keepCaseTitle)
			}
			return fmt.Errorf("поиск дела %q: %w", keepCaseTitle, err)
		}
		res.CaseID = keep.ID

		if paths, err = r.Files.StoragePathsNotInCase(ctx, keep.ID); err != nil {
			return err
		}
		res.EvidenceDeleted, err = r.Evidence.DeleteNotInCase(ctx, keep.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Файлы удаляются после коммита: при откате они остаются на месте.
	for _, p := range paths {
		if err := s.files.DeleteFile(p); err != nil {
			res.FilesRemoveFails++
			s.logger.Warn("Не удалось удалить файл улики",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.FilesRemoved++
	}

	s.logger.Info("Очистка улик завершена",
		slog.String("kept_case_id", res.CaseID),
		slog.Int64("evidence_deleted", res.EvidenceDeleted),
		slog.Int("files_removed", res.FilesRemoved),
	)
	return res, nil
}

func (s *Seeder) removeFiles(paths []string) {
	for _, p := range paths {
		if err := s.files.DeleteFile(p); err != nil {
			s.logger.Warn("Не удалось удалить файл после отката",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}
