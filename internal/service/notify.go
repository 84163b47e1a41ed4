// notify.go — построение уведомлений.
package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"github.com/bigkaa/blockevidence/internal/domain/model"
)

// evidenceLink — ссылка на улику в клиентском приложении получателя.
func evidenceLink(recipientID, evidenceID string) string {
	return fmt.Sprintf("/dashboard/%s/evidence/%s", recipientID, evidenceID)
}

// newNotification создаёт уведомление. dedupeScope вместе с получателем
// образует ключ дедупликации: повторная доставка того же события
// не создаёт вторую строку.
func newNotification(recipientID, kind, title, message, link, dedupeScope string) model.Notification {
	return model.Notification{
		ID:        uuid.New().String(),
		UserID:    recipientID,
		Type:      kind,
		Title:     title,
		Message:   message,
		Link:      null.NewString(link, link != ""),
		DedupeKey: kind + ":" + dedupeScope + ":" + recipientID,
	}
}
