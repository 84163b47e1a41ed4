package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/guregu/null/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// CaseRepository — интерфейс доступа к таблице cases.
type CaseRepository interface {
	// List возвращает все дела (новые первыми) с создателем и crime box.
	List(ctx context.Context) ([]*model.Case, error)
	// Create создаёт дело.
	Create(ctx context.Context, c *model.Case) error
	// GetByID возвращает дело с создателем и crime box.
	GetByID(ctx context.Context, id string) (*model.Case, error)
	// Update применяет частичное обновление. Поля с Set=false не меняются.
	Update(ctx context.Context, id string, upd model.CaseUpdate) error
	// FindByTitle возвращает дело по точному названию.
	FindByTitle(ctx context.Context, title string) (*model.Case, error)
}

type caseRepo struct {
	db DBTX
}

// NewCaseRepository создаёт репозиторий дел.
func NewCaseRepository(db DBTX) CaseRepository {
	return &caseRepo{db: db}
}

const caseSelect = `
	SELECT c.id, c.title, c.description, c.status, c.created_by_id,
		c.created_at, c.updated_at, u.username, u.full_name
	FROM cases c
	JOIN users u ON u.id = c.created_by_id`

func (r *caseRepo) List(ctx context.Context) ([]*model.Case, error) {
	rows, err := r.db.Query(ctx, caseSelect+` ORDER BY c.created_at DESC, c.id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка дел: %w", err)
	}
	defer rows.Close()

	var result []*model.Case
	byID := make(map[string]*model.Case)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования дела: %w", err)
		}
		result = append(result, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachBoxes(ctx, byID); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *caseRepo) Create(ctx context.Context, c *model.Case) error {
	query := `
		INSERT INTO cases (id, title, description, status, created_by_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.Title, c.Description, c.Status, c.CreatedByID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания дела: %w", err)
	}
	return nil
}

func (r *caseRepo) GetByID(ctx context.Context, id string) (*model.Case, error) {
	c, err := scanCase(r.db.QueryRow(ctx, caseSelect+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения дела")
	}
	if err := r.attachBoxes(ctx, map[string]*model.Case{c.ID: c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *caseRepo) FindByTitle(ctx context.Context, title string) (*model.Case, error) {
	c, err := scanCase(r.db.QueryRow(ctx,
		caseSelect+` WHERE c.title = $1 ORDER BY c.created_at LIMIT 1`, title))
	if err != nil {
		return nil, notFoundOr(err, "ошибка поиска дела")
	}
	return c, nil
}

func (r *caseRepo) Update(ctx context.Context, id string, upd model.CaseUpdate) error {
	q := psql.Update("cases").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id})

	if upd.Title.Set {
		q = q.Set("title", upd.Title.Value)
	}
	if upd.Status.Set {
		q = q.Set("status", upd.Status.Value)
	}
	if upd.Description.Set {
		q = q.Set("description", null.NewString(upd.Description.Value, !upd.Description.Null))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса обновления дела: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("ошибка обновления дела: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*model.Case, error) {
	c := &model.Case{}
	var username, fullName string
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Status, &c.CreatedByID,
		&c.CreatedAt, &c.UpdatedAt, &username, &fullName,
	)
	if err != nil {
		return nil, err
	}
	c.CreatedBy = &model.UserSummary{ID: c.CreatedByID, Username: username, FullName: fullName}
	c.CrimeBoxes = []model.CrimeBoxSummary{}
	return c, nil
}

// attachBoxes загружает crime box для набора дел одним запросом.
func (r *caseRepo) attachBoxes(ctx context.Context, cases map[string]*model.Case) error {
	if len(cases) == 0 {
		return nil
	}
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, case_ref_id, created_at
		FROM crime_boxes
		WHERE case_ref_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return fmt.Errorf("ошибка получения crime box дел: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b model.CrimeBoxSummary
		if err := rows.Scan(&b.ID, &b.Name, &b.CaseRefID, &b.CreatedAt); err != nil {
			return fmt.Errorf("ошибка сканирования crime box: %w", err)
		}
		if c, ok := cases[b.CaseRefID.String]; ok {
			c.CrimeBoxes = append(c.CrimeBoxes, b)
		}
	}
	return rows.Err()
}
