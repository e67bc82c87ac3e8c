package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationPending = "PENDING"
	NotificationSent    = "SENT"
	NotificationFailed  = "FAILED"
)

// Notification is the business-side record of customer activity, distinct from
// the customer-facing message itself. The router creates rows as PENDING; the
// dispatch worker owns them afterwards.
type Notification struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	Type        string         `json:"type" gorm:"size:48;index"` // new_inquiry, payment_received, listing_sold, ...
	Title       string         `json:"title" gorm:"size:256"`
	Message     string         `json:"message" gorm:"type:text"`
	RecipientID uint           `json:"recipientID" gorm:"not null;index"`
	Status      string         `json:"status" gorm:"size:16;default:PENDING;index"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	SentAt      *time.Time     `json:"sentAt"`
}
