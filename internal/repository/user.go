package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// UserRepository — интерфейс доступа к таблице users.
type UserRepository interface {
	// Create создаёт пользователя. Дубликат username/email — ErrConflict.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по UUID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByUsername возвращает пользователя по имени.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List возвращает активных пользователей, упорядоченных по полному имени.
	List(ctx context.Context) ([]*model.User, error)
	// ListByRoles возвращает активных пользователей с одной из ролей.
	ListByRoles(ctx context.Context, roles []string) ([]*model.User, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, username, email, full_name, password_hash, role,
	badge_number, department, is_active, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.Role,
		&u.BadgeNumber, &u.Department, &u.IsActive, &u.CreatedAt,
	)
	return u, err
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, username, email, full_name, password_hash, role,
			badge_number, department, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.FullName, u.PasswordHash, u.Role,
		u.BadgeNumber, u.Department, u.IsActive,
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username или email уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения пользователя")
	}
	return u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения пользователя")
	}
	return u, nil
}

func (r *userRepo) List(ctx context.Context) ([]*model.User, error) {
	return r.list(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_active ORDER BY full_name, username`)
}

func (r *userRepo) ListByRoles(ctx context.Context, roles []string) ([]*model.User, error) {
	return r.list(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_active AND role = ANY($1) ORDER BY created_at, id`,
		roles)
}

func (r *userRepo) list(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
