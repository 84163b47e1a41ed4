package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// EvidenceFileRepository — интерфейс доступа к таблице evidence_files.
type EvidenceFileRepository interface {
	// Create сохраняет метаданные загруженного файла.
	Create(ctx context.Context, f *model.EvidenceFile) error
	// ListByEvidence возвращает файлы улики в порядке загрузки.
	ListByEvidence(ctx context.Context, evidenceID string) ([]*model.EvidenceFile, error)
	// GetByID возвращает файл улики.
	GetByID(ctx context.Context, evidenceID, fileID string) (*model.EvidenceFile, error)
	// StoragePathsNotInCase возвращает пути файлов улик вне указанного дела.
	StoragePathsNotInCase(ctx context.Context, caseID string) ([]string, error)
}

type evidenceFileRepo struct {
	db DBTX
}

// NewEvidenceFileRepository создаёт репозиторий файлов улик.
func NewEvidenceFileRepository(db DBTX) EvidenceFileRepository {
	return &evidenceFileRepo{db: db}
}

const evidenceFileColumns = `id, evidence_id, file_name, file_size, mime_type,
	sha256_hash, storage_path, uploaded_by_id, uploaded_at`

func scanEvidenceFile(row rowScanner) (*model.EvidenceFile, error) {
	f := &model.EvidenceFile{}
	err := row.Scan(&f.ID, &f.EvidenceID, &f.FileName, &f.FileSize, &f.MimeType,
		&f.SHA256Hash, &f.StoragePath, &f.UploadedByID, &f.UploadedAt)
	return f, err
}

func (r *evidenceFileRepo) Create(ctx context.Context, f *model.EvidenceFile) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO evidence_files (id, evidence_id, file_name, file_size, mime_type,
			sha256_hash, storage_path, uploaded_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING uploaded_at`,
		f.ID, f.EvidenceID, f.FileName, f.FileSize, f.MimeType,
		f.SHA256Hash, f.StoragePath, f.UploadedByID,
	).Scan(&f.UploadedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения файла улики: %w", err)
	}
	return nil
}

func (r *evidenceFileRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.EvidenceFile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+evidenceFileColumns+`
		FROM evidence_files
		WHERE evidence_id = $1
		ORDER BY uploaded_at, id`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов улики: %w", err)
	}
	defer rows.Close()

	var result []*model.EvidenceFile
	for rows.Next() {
		f, err := scanEvidenceFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла улики: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *evidenceFileRepo) GetByID(ctx context.Context, evidenceID, fileID string) (*model.EvidenceFile, error) {
	f, err := scanEvidenceFile(r.db.QueryRow(ctx, `
		SELECT `+evidenceFileColumns+`
		FROM evidence_files
		WHERE id = $1 AND evidence_id = $2`, fileID, evidenceID))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения файла улики")
	}
	return f, nil
}

func (r *evidenceFileRepo) StoragePathsNotInCase(ctx context.Context, caseID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT f.storage_path
		FROM evidence_files f
		JOIN evidence e ON e.id = f.evidence_id
		WHERE e.case_id IS DISTINCT FROM $1`, caseID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения путей файлов: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пути файла: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
