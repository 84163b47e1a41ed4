// store.go — доступ сервисов к репозиториям и транзакциям.
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// TxRunner выполняет функцию в транзакции. Реализуется repository.TxRunner.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// NotificationDispatcher доставляет пакет уведомлений в рамках транзакции
// основной записи. Реализуется outbox.RiverDispatcher и outbox.InlineDispatcher.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, tx pgx.Tx, batch []model.Notification) error
}

// RepoFactory создаёт набор репозиториев поверх пула или транзакции.
type RepoFactory func(db repository.DBTX) *repository.Repositories

// Store — репозитории для чтения и фабрика транзакционных репозиториев.
type Store struct {
	repos   *repository.Repositories
	tx      TxRunner
	factory RepoFactory
}

// NewStore создаёт Store поверх пула PostgreSQL.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		repos:   repository.NewRepositories(pool),
		tx:      repository.NewTxRunner(pool),
		factory: repository.NewRepositories,
	}
}

// NewStoreWith создаёт Store из готовых компонентов (тесты).
func NewStoreWith(repos *repository.Repositories, tx TxRunner, factory RepoFactory) *Store {
	return &Store{repos: repos, tx: tx, factory: factory}
}

// Repos возвращает репозитории вне транзакции.
func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// InTx выполняет fn в транзакции с репозиториями, привязанными к ней.
func (s *Store) InTx(ctx context.Context, fn func(tx pgx.Tx, r *repository.Repositories) error) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(tx, s.factory(tx))
	})
}

// requirePermission проверяет разрешение роли вызывающего.
func requirePermission(p model.Principal, permission string) error {
	if !rbac.HasPermission(p.Role, permission) {
		return forbiddenError("You do not have permission to perform this action")
	}
	return nil
}

// activityEntry возвращает запись журнала активности для действия.
func activityEntry(p model.Principal, action, entityType, entityID, label string) *model.ActivityLog {
	a := &model.ActivityLog{
		ID:         uuid.New().String(),
		ActorID:    p.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if label = strings.TrimSpace(label); label != "" {
		a.EntityLabel.SetValid(truncate(label, 200))
	}
	return a
}

// truncate обрезает строку до n рун.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
