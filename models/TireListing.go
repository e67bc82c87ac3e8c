package models

import (
	"time"

	"gorm.io/datatypes"
)

// Listing lifecycle: draft -> active -> sold | removed. Removed is a soft delete;
// rows are never hard-deleted so payment history keeps a valid reference.
const (
	ListingStatusDraft   = "draft"
	ListingStatusActive  = "active"
	ListingStatusSold    = "sold"
	ListingStatusRemoved = "removed"
)

type TireListing struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	SellerID    uint           `json:"sellerID" gorm:"not null;index"`
	Title       string         `json:"title" gorm:"size:256;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Brand       string         `json:"brand" gorm:"size:64;index"`
	TireSize    string         `json:"tireSize" gorm:"size:32;index"` // e.g. 225/65R17
	Condition   string         `json:"condition" gorm:"size:16"`      // new, used, refurbished
	TreadDepth  float32        `json:"treadDepth"`                    // remaining tread in 32nds of an inch
	Quantity    int            `json:"quantity" gorm:"default:1"`
	PriceCents  int64          `json:"priceCents" gorm:"not null"`
	Currency    string         `json:"currency" gorm:"size:3;default:usd"`
	Images      datatypes.JSON `json:"images"`
	Status      string         `json:"status" gorm:"size:16;default:active;index"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`

	Seller User `json:"seller,omitempty" gorm:"foreignKey:SellerID;references:ID"`
}
