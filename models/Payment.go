package models

import "time"

const (
	PaymentRequiresPayment = "requires_payment"
	PaymentSucceeded       = "succeeded"
	PaymentFailed          = "failed"
	PaymentCanceled        = "canceled"
)

type Payment struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ListingID   uint      `json:"listingID" gorm:"not null;index"`
	BuyerID     uint      `json:"buyerID" gorm:"index"`
	SellerID    uint      `json:"sellerID" gorm:"not null;index"`
	StripeID    string    `json:"stripeID" gorm:"size:128;uniqueIndex"` // payment intent or checkout session id
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency" gorm:"size:3"`
	Status      string    `json:"status" gorm:"size:24;index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Listing TireListing `json:"listing,omitempty" gorm:"foreignKey:ListingID;references:ID"`
}
