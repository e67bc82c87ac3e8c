package services

import (
	"log"
	"time"

	"tg-tires-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentProcessor applies webhook-driven state changes to payment rows and
// their listings. It is deliberately idempotent: Stripe redelivers events.
type PaymentProcessor struct {
	db   *gorm.DB
	sink NotificationSink
}

func NewPaymentProcessor(db *gorm.DB, sink NotificationSink) *PaymentProcessor {
	return &PaymentProcessor{db: db, sink: sink}
}

func (p *PaymentProcessor) find(stripeID string) (*models.Payment, error) {
	var payment models.Payment
	result := p.db.Where("stripe_id = ?", stripeID).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// PaymentSucceeded marks the payment settled, retires the listing and tells
// the seller.
func (p *PaymentProcessor) PaymentSucceeded(stripeID string) error {
	payment, err := p.find(stripeID)
	if err != nil || payment == nil {
		return err
	}
	if payment.Status == models.PaymentSucceeded {
		return nil
	}

	if err := p.db.Model(payment).Update("status", models.PaymentSucceeded).Error; err != nil {
		return err
	}
	if err := p.db.Model(&models.TireListing{}).
		Where("id = ? AND status = ?", payment.ListingID, models.ListingStatusActive).
		Update("status", models.ListingStatusSold).Error; err != nil {
		log.Printf("could not mark listing %d sold: %v", payment.ListingID, err)
	}

	notification := &models.Notification{
		ID:          uuid.NewString(),
		Type:        "payment_received",
		Title:       "Payment received",
		Message:     "A buyer completed payment on one of your listings.",
		RecipientID: payment.SellerID,
		Status:      models.NotificationPending,
		Metadata:    marshalMetadata(map[string]string{"stripeID": stripeID}),
		CreatedAt:   time.Now(),
	}
	if err := p.sink.Notify(notification); err != nil {
		log.Printf("payment notification failed for %s: %v", stripeID, err)
	}
	return nil
}

func (p *PaymentProcessor) PaymentFailed(stripeID string) error {
	return p.setStatus(stripeID, models.PaymentFailed)
}

func (p *PaymentProcessor) PaymentCanceled(stripeID string) error {
	return p.setStatus(stripeID, models.PaymentCanceled)
}

func (p *PaymentProcessor) setStatus(stripeID, status string) error {
	payment, err := p.find(stripeID)
	if err != nil || payment == nil {
		return err
	}
	// Terminal success never regresses on a late failure event.
	if payment.Status == models.PaymentSucceeded {
		return nil
	}
	return p.db.Model(payment).Update("status", status).Error
}

// CheckoutCompleted handles checkout.session.completed for payment links,
// where the session id is what we stored at creation time.
func (p *PaymentProcessor) CheckoutCompleted(sessionID string) error {
	return p.PaymentSucceeded(sessionID)
}
