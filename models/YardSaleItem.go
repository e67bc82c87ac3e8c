package models

import (
	"time"

	"gorm.io/datatypes"
)

type YardSaleItem struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	SellerID    uint           `json:"sellerID" gorm:"not null;index"`
	Title       string         `json:"title" gorm:"size:256;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category" gorm:"size:64;index"` // tools, furniture, parts, other
	PriceCents  int64          `json:"priceCents"`
	Images      datatypes.JSON `json:"images"`
	Sold        bool           `json:"sold" gorm:"default:false;index"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   *time.Time     `json:"deletedAt" gorm:"index"`

	Seller User `json:"seller,omitempty" gorm:"foreignKey:SellerID;references:ID"`
}
