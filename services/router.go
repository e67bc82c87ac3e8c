package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"tg-tires-server/models"
	"tg-tires-server/utils"

	"github.com/google/uuid"
)

// MessageRouter bridges conversation state to delivery. Inbound messages
// resolve or create a conversation and raise a business notification;
// outbound replies are dispatched through the channel's sender and persisted
// only when the send succeeds.
type MessageRouter struct {
	repo    ConversationRepository
	sink    NotificationSink
	senders map[string]ChannelSender
	locks   sync.Map // conversation id -> *sync.Mutex
}

func NewMessageRouter(repo ConversationRepository, sink NotificationSink, senders map[string]ChannelSender) *MessageRouter {
	return &MessageRouter{
		repo:    repo,
		sink:    sink,
		senders: senders,
	}
}

// lock serializes appends per conversation so concurrent sends cannot
// interleave message order.
func (r *MessageRouter) lock(conversationID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func validChannel(channel string) bool {
	switch channel {
	case models.ChannelSMS, models.ChannelEmail, models.ChannelInApp:
		return true
	}
	return false
}

func marshalMetadata(metadata map[string]string) []byte {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return raw
}

// HandleIncoming accepts a customer message: sanitize, resolve the
// conversation, append, notify the business. The message is persisted before
// this returns.
func (r *MessageRouter) HandleIncoming(ctx context.Context, from, content, channel string, businessID uint, metadata map[string]string) (*models.Message, error) {
	if !validChannel(channel) {
		return nil, ErrUnknownChannel
	}

	content = utils.SanitizeContent(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	conv, err := r.repo.GetOrCreate(from, businessID, channel)
	if err != nil {
		return nil, err
	}

	mu := r.lock(conv.ID)
	mu.Lock()
	defer mu.Unlock()

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Direction:      models.MessageInbound,
		From:           from,
		To:             fmt.Sprintf("business:%d", businessID),
		Content:        content,
		Channel:        channel,
		Metadata:       marshalMetadata(metadata),
		CreatedAt:      time.Now(),
	}

	if err := r.repo.Append(conv, msg); err != nil {
		return nil, err
	}

	notification := &models.Notification{
		ID:          uuid.NewString(),
		Type:        "new_inquiry",
		Title:       "New customer message",
		Message:     content,
		RecipientID: businessID,
		Status:      models.NotificationPending,
		Metadata: marshalMetadata(map[string]string{
			"conversationID": conv.ID,
			"channel":        channel,
			"from":           from,
		}),
		CreatedAt: time.Now(),
	}
	if err := r.sink.Notify(notification); err != nil {
		// The customer's message is already stored; a lost notification is
		// recoverable from the conversation list.
		log.Printf("notification write failed for conversation %s: %v", conv.ID, err)
	}

	return msg, nil
}

// SendReply dispatches a business reply over the conversation's channel.
// The reply is persisted only after the sender reports success; on failure
// the caller receives a typed *DeliveryError and must resubmit.
func (r *MessageRouter) SendReply(ctx context.Context, conversationID, content string, fromUser uint, inReplyTo *string) (*models.Message, error) {
	conv, err := r.repo.Get(conversationID)
	if err != nil {
		return nil, err
	}

	content = utils.SanitizeContent(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	sender, ok := r.senders[conv.Channel]
	if !ok {
		return nil, ErrUnknownChannel
	}

	mu := r.lock(conv.ID)
	mu.Lock()
	defer mu.Unlock()

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Direction:      models.MessageOutbound,
		From:           fmt.Sprintf("business:%d", fromUser),
		To:             conv.CustomerIdentifier,
		Content:        content,
		Channel:        conv.Channel,
		InReplyTo:      inReplyTo,
		CreatedAt:      time.Now(),
	}

	result := sender.Send(ctx, msg)
	if result.Status != DeliveryOK {
		return nil, &DeliveryError{Result: result}
	}

	if err := r.repo.Append(conv, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Conversation returns the conversation with its ordered history.
func (r *MessageRouter) Conversation(conversationID string) (*models.Conversation, []models.Message, error) {
	conv, err := r.repo.Get(conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := r.repo.Messages(conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

func (r *MessageRouter) ListByBusiness(businessID uint) ([]models.Conversation, error) {
	return r.repo.ListByBusiness(businessID)
}

// CloseConversation and ArchiveConversation are one-way transitions out of
// ACTIVE. Terminal conversations stay terminal.
func (r *MessageRouter) CloseConversation(conversationID string) error {
	return r.repo.SetStatus(conversationID, models.ConversationClosed)
}

func (r *MessageRouter) ArchiveConversation(conversationID string) error {
	return r.repo.SetStatus(conversationID, models.ConversationArchived)
}
