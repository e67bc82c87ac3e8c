package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tg-tires-server/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

const DispatchNotificationTaskType = "notify:dispatch"

type dispatchNotificationPayload struct {
	NotificationID string `json:"notificationID"`
}

// NotificationService persists notification records and hands delivery to the
// background queue. It is the router's NotificationSink in production.
type NotificationService struct {
	db    *gorm.DB
	queue *asynq.Client
}

func NewNotificationService(db *gorm.DB, queue *asynq.Client) *NotificationService {
	return &NotificationService{db: db, queue: queue}
}

func (ns *NotificationService) Notify(n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if err := ns.db.Create(n).Error; err != nil {
		return err
	}

	if ns.queue != nil {
		payload, _ := json.Marshal(dispatchNotificationPayload{NotificationID: n.ID})
		task := asynq.NewTask(DispatchNotificationTaskType, payload)
		if _, err := ns.queue.Enqueue(task, asynq.Queue("outbound"), asynq.MaxRetry(3)); err != nil {
			// Row is stored as PENDING; a later sweep or manual requeue can
			// still deliver it.
			log.Printf("failed to enqueue notification %s: %v", n.ID, err)
		}
	}
	return nil
}

// ListForUser returns the recipient's notifications, newest first.
func (ns *NotificationService) ListForUser(userID uint, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var notifications []models.Notification
	err := ns.db.Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// RegisterDispatchTask binds the delivery worker: push the notification over
// the websocket hub and mark the row SENT. Recipients who opted out are
// marked SENT without a push.
func RegisterDispatchTask(mux *asynq.ServeMux, db *gorm.DB, hub *Hub) {
	mux.HandleFunc(DispatchNotificationTaskType, func(ctx context.Context, t *asynq.Task) error {
		var p dispatchNotificationPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}

		var notification models.Notification
		result := db.Where("id = ?", p.NotificationID).Limit(1).Find(&notification)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 || notification.Status != models.NotificationPending {
			return nil
		}

		var recipient models.User
		if err := db.First(&recipient, notification.RecipientID).Error; err != nil {
			db.Model(&notification).Updates(map[string]any{"status": models.NotificationFailed})
			return nil
		}

		if recipient.AllowsNotifications == nil || *recipient.AllowsNotifications {
			hub.Push(notification.RecipientID, map[string]any{
				"type":     "notification",
				"id":       notification.ID,
				"title":    notification.Title,
				"message":  notification.Message,
				"metadata": notification.Metadata,
			})
		}

		now := time.Now()
		return db.Model(&notification).
			Updates(map[string]any{"status": models.NotificationSent, "sent_at": now}).Error
	})
}
