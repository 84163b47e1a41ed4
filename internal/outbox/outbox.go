// Пакет outbox — доставка уведомлений через транзакционную очередь River.
//
// Задание ставится в очередь в той же транзакции, что и основная запись
// (InsertTx), поэтому уведомление не теряется при откате и не появляется
// без основной записи. Доставка at-least-once; повторы гасятся уникальным
// dedupe_key уведомления.
package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// maxAttempts — число попыток доставки пакета уведомлений.
const maxAttempts = 10

// jobsTotal — исходы заданий очереди уведомлений.
var jobsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "be_outbox_jobs_total",
		Help: "Количество обработанных заданий доставки уведомлений по исходу.",
	},
	[]string{"outcome"},
)

// notificationsTotal — уведомления, записанные или отброшенные как повтор.
var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "be_outbox_notifications_total",
		Help: "Количество уведомлений, обработанных очередью (inserted, duplicate).",
	},
	[]string{"result"},
)

// NotifyArgs — аргументы задания: пакет уведомлений одного действия.
type NotifyArgs struct {
	Notifications []model.Notification `json:"notifications"`
}

// Kind — идентификатор типа задания в River.
func (NotifyArgs) Kind() string { return "notify" }

// NotificationInserter — запись уведомления с дедупликацией.
type NotificationInserter interface {
	Insert(ctx context.Context, n *model.Notification) (bool, error)
}

// NotifyWorker записывает пакет уведомлений в таблицу notifications.
type NotifyWorker struct {
	river.WorkerDefaults[NotifyArgs]

	store  NotificationInserter
	logger *slog.Logger
}

// NewNotifyWorker создаёт воркер доставки уведомлений.
func NewNotifyWorker(store NotificationInserter, logger *slog.Logger) *NotifyWorker {
	return &NotifyWorker{
		store:  store,
		logger: logger.With(slog.String("component", "outbox_worker")),
	}
}

// Work записывает уведомления пакета. Уже записанные (повторная доставка)
// пропускаются по dedupe_key.
func (w *NotifyWorker) Work(ctx context.Context, job *river.Job[NotifyArgs]) error {
	var inserted, duplicates int
	for i := range job.Args.Notifications {
		n := job.Args.Notifications[i]
		ok, err := w.store.Insert(ctx, &n)
		if err != nil {
			return fmt.Errorf("доставка уведомления %s: %w", n.DedupeKey, err)
		}
		if ok {
			inserted++
		} else {
			duplicates++
		}
	}

	notificationsTotal.WithLabelValues("inserted").Add(float64(inserted))
	notificationsTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	jobsTotal.WithLabelValues("succeeded").Inc()

	w.logger.Debug("Уведомления доставлены",
		slog.Int64("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.Int("inserted", inserted),
		slog.Int("duplicates", duplicates),
	)
	return nil
}

// ErrorHandler логирует и считает неуспешные задания очереди.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler создаёт обработчик ошибок заданий.
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger.With(slog.String("component", "outbox"))}
}

// HandleError вызывается River при ошибке задания.
func (h *ErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	jobsTotal.WithLabelValues("failed").Inc()
	h.logger.Error("Ошибка доставки уведомлений",
		slog.Int64("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("error", err.Error()),
	)
	return nil
}

// HandlePanic вызывается River при панике в воркере.
func (h *ErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	jobsTotal.WithLabelValues("panicked").Inc()
	h.logger.Error("Паника при доставке уведомлений",
		slog.Int64("job_id", job.ID),
		slog.String("kind", job.Kind),
		slog.Any("panic", panicVal),
		slog.String("trace", trace),
	)
	return nil
}

// Queue — клиент River с зарегистрированным воркером уведомлений.
type Queue struct {
	client *river.Client[pgx.Tx]
	logger *slog.Logger
}

// NewQueue создаёт клиента River поверх пула PostgreSQL.
// Таблицы River должны быть созданы (database.MigrateQueue).
func NewQueue(pool *pgxpool.Pool, maxWorkers int, logger *slog.Logger) (*Queue, error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewNotifyWorker(repository.NewNotificationRepository(pool), logger))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers:      workers,
		Logger:       logger,
		ErrorHandler: NewErrorHandler(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента River: %w", err)
	}

	return &Queue{
		client: client,
		logger: logger.With(slog.String("component", "outbox")),
	}, nil
}

// Start запускает обработку заданий.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.client.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска очереди уведомлений: %w", err)
	}
	q.logger.Info("Очередь уведомлений запущена")
	return nil
}

// Stop дожидается завершения текущих заданий.
func (q *Queue) Stop(ctx context.Context) error {
	if err := q.client.Stop(ctx); err != nil {
		return fmt.Errorf("ошибка остановки очереди уведомлений: %w", err)
	}
	q.logger.Info("Очередь уведомлений остановлена")
	return nil
}

// Dispatcher возвращает диспетчер, ставящий задания в транзакции.
func (q *Queue) Dispatcher() *RiverDispatcher {
	return &RiverDispatcher{client: q.client}
}

// RiverDispatcher ставит пакет уведомлений в очередь в транзакции вызывающего.
type RiverDispatcher struct {
	client *river.Client[pgx.Tx]
}

// Dispatch вставляет задание доставки в транзакцию tx.
func (d *RiverDispatcher) Dispatch(ctx context.Context, tx pgx.Tx, batch []model.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := d.client.InsertTx(ctx, tx, NotifyArgs{Notifications: batch}, &river.InsertOpts{
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return fmt.Errorf("ошибка постановки уведомлений в очередь: %w", err)
	}
	return nil
}

// InlineDispatcher записывает уведомления сразу в транзакции вызывающего.
// Используется при BE_OUTBOX_ENABLED=false.
type InlineDispatcher struct{}

// Dispatch записывает уведомления через репозиторий, привязанный к tx.
func (InlineDispatcher) Dispatch(ctx context.Context, tx pgx.Tx, batch []model.Notification) error {
	repo := repository.NewNotificationRepository(tx)
	for i := range batch {
		if _, err := repo.Insert(ctx, &batch[i]); err != nil {
			return err
		}
	}
	return nil
}
