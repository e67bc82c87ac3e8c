package models

import "time"

const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// SecurityEvent records a rejected request: suspicious input, invalid webhook
// signatures, auth failures, rate-limit blocks.
type SecurityEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	EventType string    `json:"eventType" gorm:"size:48;index"`
	Severity  string    `json:"severity" gorm:"size:12;index"`
	Detail    string    `json:"detail" gorm:"type:text"`
	IPAddress string    `json:"ipAddress" gorm:"size:64;index"`
	UserID    uint      `json:"userID" gorm:"index"` // zero when unauthenticated
	Path      string    `json:"path" gorm:"size:256"`
	CreatedAt time.Time `json:"createdAt"`
}
