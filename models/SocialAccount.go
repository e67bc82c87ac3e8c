package models

import "time"

type SocialAccount struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	UserID      uint       `json:"userID" gorm:"not null;index"`
	Platform    string     `json:"platform" gorm:"size:24;not null;index"` // facebook, instagram, x, marketplace
	Handle      string     `json:"handle" gorm:"size:128"`
	AccessToken string     `json:"-" gorm:"size:1024"` // opaque platform token, never serialized
	CreatedAt   time.Time  `json:"createdAt"`
	DeletedAt   *time.Time `json:"deletedAt" gorm:"index"`
}
