package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// CommentRepository — интерфейс доступа к таблице evidence_comments.
type CommentRepository interface {
	// ListByEvidence возвращает комментарии улики (старые первыми).
	ListByEvidence(ctx context.Context, evidenceID string) ([]*model.Comment, error)
	// Create добавляет комментарий.
	Create(ctx context.Context, c *model.Comment) error
	// GetByID возвращает комментарий.
	GetByID(ctx context.Context, id string) (*model.Comment, error)
	// Delete физически удаляет комментарий.
	Delete(ctx context.Context, id string) error
}

type commentRepo struct {
	db DBTX
}

// NewCommentRepository создаёт репозиторий комментариев.
func NewCommentRepository(db DBTX) CommentRepository {
	return &commentRepo{db: db}
}

const commentSelect = `
	SELECT c.id, c.evidence_id, c.user_id, c.content, c.created_at,
		u.username, u.full_name, u.role
	FROM evidence_comments c
	JOIN users u ON u.id = c.user_id`

func scanComment(row rowScanner) (*model.Comment, error) {
	c := &model.Comment{}
	var username, fullName, role string
	if err := row.Scan(&c.ID, &c.EvidenceID, &c.UserID, &c.Content, &c.CreatedAt,
		&username, &fullName, &role); err != nil {
		return nil, err
	}
	c.User = &model.UserSummary{ID: c.UserID, Username: username, FullName: fullName, Role: role}
	return c, nil
}

func (r *commentRepo) ListByEvidence(ctx context.Context, evidenceID string) ([]*model.Comment, error) {
	rows, err := r.db.Query(ctx, commentSelect+`
		WHERE c.evidence_id = $1
		ORDER BY c.created_at, c.id`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения комментариев: %w", err)
	}
	defer rows.Close()

	var result []*model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования комментария: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *commentRepo) Create(ctx context.Context, c *model.Comment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO evidence_comments (id, evidence_id, user_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		c.ID, c.EvidenceID, c.UserID, c.Content,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания комментария: %w", err)
	}
	return nil
}

func (r *commentRepo) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(r.db.QueryRow(ctx, commentSelect+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения комментария")
	}
	return c, nil
}

func (r *commentRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM evidence_comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления комментария: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
