// Пакет repository — слой доступа к данным PostgreSQL.
// Запросы — SQL через pgx; динамические фильтры и частичные
// обновления собираются squirrel.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/guregu/null/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности или состояния.
	ErrConflict = errors.New("конфликт — запись уже существует или изменена")
)

// psql — построитель запросов с плейсхолдерами PostgreSQL ($1, $2...).
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories — набор репозиториев, привязанных к одному DBTX.
type Repositories struct {
	Users          UserRepository
	Cases          CaseRepository
	CrimeBoxes     CrimeBoxRepository
	Evidence       EvidenceRepository
	Files          EvidenceFileRepository
	Custody        CustodyRepository
	Comments       CommentRepository
	LabResults     LabResultRepository
	AccessRequests AccessRequestRepository
	Notifications  NotificationRepository
	Activity       ActivityRepository
	Stats          StatsRepository
}

// NewRepositories создаёт все репозитории поверх db (пул или транзакция).
func NewRepositories(db DBTX) *Repositories {
	return &Repositories{
		Users:          NewUserRepository(db),
		Cases:          NewCaseRepository(db),
		CrimeBoxes:     NewCrimeBoxRepository(db),
		Evidence:       NewEvidenceRepository(db),
		Files:          NewEvidenceFileRepository(db),
		Custody:        NewCustodyRepository(db),
		Comments:       NewCommentRepository(db),
		LabResults:     NewLabResultRepository(db),
		AccessRequests: NewAccessRequestRepository(db),
		Notifications:  NewNotificationRepository(db),
		Activity:       NewActivityRepository(db),
		Stats:          NewStatsRepository(db),
	}
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isInvalidID проверяет ошибку приведения текста к типу колонки
// (например, не-UUID в uuid). Такой идентификатор не существует.
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}

// notFoundOr преобразует pgx.ErrNoRows и некорректный идентификатор
// в ErrNotFound, остальное оборачивает.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// userSummary собирает краткие сведения о пользователе из LEFT JOIN.
// Если id пустой (нет связанной записи) — nil.
func userSummary(id, username, fullName, role null.String) *model.UserSummary {
	if !id.Valid {
		return nil
	}
	return &model.UserSummary{
		ID:       id.String,
		Username: username.String,
		FullName: fullName.String,
		Role:     role.String,
	}
}

// encodeRoles сериализует список ролей в jsonb; nil — SQL NULL.
func encodeRoles(roles []string) (any, error) {
	if roles == nil {
		return nil, nil
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации ролей: %w", err)
	}
	return string(b), nil
}

// decodeRoles разбирает jsonb-колонку allowed_roles; NULL — nil.
func decodeRoles(raw []byte) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	roles := []string{}
	if err := json.Unmarshal(raw, &roles); err != nil {
		return nil, fmt.Errorf("ошибка разбора allowed_roles: %w", err)
	}
	return roles, nil
}
