// retention.go — фоновая проверка сроков хранения улик.
//
// RetentionSweeper запускает горутину с ticker (BE_RETENTION_SWEEP_INTERVAL).
// Для каждой улики с наступившим сроком текущий хранитель получает одно
// уведомление retention_due на каждый установленный срок: отметка
// retention_notified_at ставится в той же транзакции, что и уведомление,
// и сбрасывается при изменении срока.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/blockevidence/internal/domain/model"
	"github.com/bigkaa/blockevidence/internal/repository"
)

// sweepBatchSize — максимум улик за один проход.
const sweepBatchSize = 500

// retentionNotificationsTotal — отправленные уведомления о сроке хранения.
var retentionNotificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "be_retention_notifications_total",
	Help: "Количество уведомлений о наступлении срока хранения улик.",
})

// RetentionSweeper — периодическое уведомление о сроках хранения.
type RetentionSweeper struct {
	store      *Store
	dispatcher NotificationDispatcher
	interval   time.Duration
	now        func() time.Time
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionSweeper создаёт сервис проверки сроков хранения.
func NewRetentionSweeper(store *Store, dispatcher NotificationDispatcher, interval time.Duration, logger *slog.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "retention_sweeper")),
	}
}

// Start запускает фоновую горутину.
func (s *RetentionSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Проверка сроков хранения запущена",
			slog.String("interval", s.interval.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Проверка сроков хранения остановлена")
				return
			case <-ticker.C:
				notified, err := s.SweepNow(ctx)
				if err != nil {
					s.logger.Error("Ошибка проверки сроков хранения",
						slog.String("error", err.Error()),
					)
					continue
				}
				if notified > 0 {
					s.logger.Info("Отправлены уведомления о сроках хранения",
						slog.Int("notified", notified),
					)
				}
			}
		}
	}()
}

// Stop останавливает горутину и ждёт её завершения.
func (s *RetentionSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// SweepNow выполняет один проход. Возвращает число отправленных уведомлений.
func (s *RetentionSweeper) SweepNow(ctx context.Context) (int, error) {
	due, err := s.store.Repos().Evidence.ListRetentionDue(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("поиск улик с наступившим сроком: %w", err)
	}

	notified := 0
	for _, e := range due {
		if !e.RetentionDeadline.Valid {
			continue
		}
		sent, err := s.notify(ctx, e)
		if err != nil {
			return notified, err
		}
		if sent {
			notified++
		}
	}
	retentionNotificationsTotal.Add(float64(notified))
	return notified, nil
}

func (s *RetentionSweeper) notify(ctx context.Context, e *model.Evidence) (bool, error) {
	deadline := e.RetentionDeadline.Time
	sent := false
	err := s.store.InTx(ctx, func(tx pgx.Tx, r *repository.Repositories) error {
		marked, err := r.Evidence.MarkRetentionNotified(ctx, e.ID, deadline)
		if err != nil || !marked {
			return err
		}
		n := newNotification(e.CurrentCustodianID, model.NotifyRetentionDue,
			"Retention Deadline Reached",
			fmt.Sprintf("Retention deadline %s has passed for evidence: %s",
				deadline.UTC().Format(time.DateOnly), truncate(e.Description, 80)),
			evidenceLink(e.CurrentCustodianID, e.ID),
			e.ID+":"+deadline.UTC().Format(time.RFC3339),
		)
		if err := s.dispatcher.Dispatch(ctx, tx, []model.Notification{n}); err != nil {
			return err
		}
		sent = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("уведомление о сроке хранения улики %s: %w", e.ID, err)
	}
	return sent, nil
}
