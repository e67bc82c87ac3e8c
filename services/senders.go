package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"tg-tires-server/models"
	"tg-tires-server/utils"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"gorm.io/gorm"
)

// TwilioSMSSender delivers over the Twilio messaging API. Credentials come
// from TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN, picked up by the rest client.
type TwilioSMSSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSMSSender() *TwilioSMSSender {
	return &TwilioSMSSender{
		client: twilio.NewRestClient(),
		from:   os.Getenv("TWILIO_FROM_NUMBER"),
	}
}

func (s *TwilioSMSSender) Send(ctx context.Context, msg *models.Message) DeliveryResult {
	params := &openapi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(msg.Content)

	_, err := s.client.Api.CreateMessage(params)
	if err == nil {
		return Delivered()
	}

	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) && restErr.Status >= 400 && restErr.Status < 500 {
		// Bad number, unverified sender: retrying the same payload cannot help.
		return PermanentFailure(err)
	}
	return RetryableFailure(err)
}

// SMTPEmailSender wraps the shared mail helper. All SMTP failures are treated
// as retryable; the relay does not distinguish bad addresses at submit time.
type SMTPEmailSender struct{}

func (SMTPEmailSender) Send(ctx context.Context, msg *models.Message) DeliveryResult {
	subject := os.Getenv("BUSINESS_NAME")
	if subject == "" {
		subject = "T.G.'s Tires"
	}
	subject = "New reply from " + subject

	sent, err := utils.SendMail(msg.To, subject, "<p>"+msg.Content+"</p>")
	if err != nil || !sent {
		if err == nil {
			err = errors.New("mail relay refused message")
		}
		return RetryableFailure(err)
	}
	return Delivered()
}

// InAppSender writes a customer-facing notification row and pushes it over
// the websocket hub when the recipient is connected. Delivery succeeds once
// the row is stored; a missed live push is recoverable from the conversation.
type InAppSender struct {
	db  *gorm.DB
	hub *Hub
}

func NewInAppSender(db *gorm.DB, hub *Hub) *InAppSender {
	return &InAppSender{db: db, hub: hub}
}

func (s *InAppSender) Send(ctx context.Context, msg *models.Message) DeliveryResult {
	recipientID, err := strconv.ParseUint(msg.To, 10, 32)
	if err != nil {
		return PermanentFailure(fmt.Errorf("in-app recipient %q is not a user id: %w", msg.To, err))
	}

	notification := models.Notification{
		ID:          uuid.NewString(),
		Type:        "new_reply",
		Title:       "New reply",
		Message:     msg.Content,
		RecipientID: uint(recipientID),
		Status:      models.NotificationSent,
		Metadata:    marshalMetadata(map[string]string{"conversationID": msg.ConversationID}),
		CreatedAt:   time.Now(),
	}
	now := time.Now()
	notification.SentAt = &now

	if s.db != nil {
		if err := s.db.Create(&notification).Error; err != nil {
			return RetryableFailure(err)
		}
	}

	if s.hub != nil {
		s.hub.Push(uint(recipientID), map[string]any{
			"type":           "message",
			"conversationID": msg.ConversationID,
			"content":        msg.Content,
		})
	}
	return Delivered()
}
