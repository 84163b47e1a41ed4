package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// CrimeBoxRepository — интерфейс доступа к таблице crime_boxes.
type CrimeBoxRepository interface {
	// Create создаёт crime box. Коллизия секретов — ErrConflict.
	Create(ctx context.Context, b *model.CrimeBox) error
	// GetByID возвращает crime box по UUID.
	GetByID(ctx context.Context, id string) (*model.CrimeBox, error)
	// GetByKey ищет crime box по приватному или публичному секрету.
	GetByKey(ctx context.Context, key string) (*model.CrimeBox, error)
	// List возвращает все crime box (новые первыми).
	List(ctx context.Context) ([]*model.CrimeBox, error)
	// LinkToCase привязывает crime box к делу (последняя запись побеждает).
	LinkToCase(ctx context.Context, boxID, caseID string) error
	// FindByName возвращает crime box по точному имени.
	FindByName(ctx context.Context, name string) (*model.CrimeBox, error)
}

type crimeBoxRepo struct {
	db DBTX
}

// NewCrimeBoxRepository создаёт репозиторий crime box.
func NewCrimeBoxRepository(db DBTX) CrimeBoxRepository {
	return &crimeBoxRepo{db: db}
}

const crimeBoxColumns = `id, name, private_key, public_key, case_ref_id, created_at`

func scanCrimeBox(row rowScanner) (*model.CrimeBox, error) {
	b := &model.CrimeBox{}
	err := row.Scan(&b.ID, &b.Name, &b.PrivateKey, &b.PublicKey, &b.CaseRefID, &b.CreatedAt)
	return b, err
}

func (r *crimeBoxRepo) Create(ctx context.Context, b *model.CrimeBox) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO crime_boxes (id, name, private_key, public_key, case_ref_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		b.ID, b.Name, b.PrivateKey, b.PublicKey, b.CaseRefID,
	).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: секрет crime box уже используется", ErrConflict)
		}
		return fmt.Errorf("ошибка создания crime box: %w", err)
	}
	return nil
}

func (r *crimeBoxRepo) GetByID(ctx context.Context, id string) (*model.CrimeBox, error) {
	b, err := scanCrimeBox(r.db.QueryRow(ctx,
		`SELECT `+crimeBoxColumns+` FROM crime_boxes WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения crime box")
	}
	return b, nil
}

func (r *crimeBoxRepo) GetByKey(ctx context.Context, key string) (*model.CrimeBox, error) {
	b, err := scanCrimeBox(r.db.QueryRow(ctx,
		`SELECT `+crimeBoxColumns+` FROM crime_boxes WHERE private_key = $1 OR public_key = $1`, key))
	if err != nil {
		return nil, notFoundOr(err, "ошибка поиска crime box по секрету")
	}
	return b, nil
}

func (r *crimeBoxRepo) FindByName(ctx context.Context, name string) (*model.CrimeBox, error) {
	b, err := scanCrimeBox(r.db.QueryRow(ctx,
		`SELECT `+crimeBoxColumns+` FROM crime_boxes WHERE name = $1 ORDER BY created_at LIMIT 1`, name))
	if err != nil {
		return nil, notFoundOr(err, "ошибка поиска crime box")
	}
	return b, nil
}

func (r *crimeBoxRepo) List(ctx context.Context) ([]*model.CrimeBox, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+crimeBoxColumns+` FROM crime_boxes ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка crime box: %w", err)
	}
	defer rows.Close()

	var result []*model.CrimeBox
	for rows.Next() {
		b, err := scanCrimeBox(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования crime box: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *crimeBoxRepo) LinkToCase(ctx context.Context, boxID, caseID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE crime_boxes SET case_ref_id = $2 WHERE id = $1`, boxID, caseID)
	if err != nil {
		return fmt.Errorf("ошибка привязки crime box к делу: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
