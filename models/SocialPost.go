package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SocialPostQueued    = "queued"
	SocialPostPublished = "published"
	SocialPostPartial   = "partial" // some platforms published, some failed
	SocialPostFailed    = "failed"
)

// SocialPost is one cross-posting request for a listing. Results holds the
// per-platform outcome map written by the publish workers; PlatformCount is
// how many outcomes are expected before the aggregate status settles.
type SocialPost struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	UserID        uint           `json:"userID" gorm:"not null;index"`
	ListingID     uint           `json:"listingID" gorm:"index"`
	Body          string         `json:"body" gorm:"type:text"`
	PlatformCount int            `json:"platformCount"`
	Status        string         `json:"status" gorm:"size:16;default:queued;index"`
	Results       datatypes.JSON `json:"results"` // platform -> "published" | error text
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`

	Listing TireListing `json:"listing,omitempty" gorm:"foreignKey:ListingID;references:ID"`
}
