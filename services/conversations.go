package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"tg-tires-server/models"

	"gorm.io/gorm"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidTransition    = errors.New("conversation is not active")
	ErrEmptyContent         = errors.New("message content is empty")
	ErrUnknownChannel       = errors.New("unknown channel")
)

// ConversationID derives the deterministic identity for a (channel, customer,
// business) triple. Same inputs always map to the same conversation.
func ConversationID(channel, customerIdentifier string, businessID uint) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", channel, customerIdentifier, businessID)))
	return hex.EncodeToString(sum[:])
}

// ConversationRepository owns identity resolution and append-only history.
// Backed by GORM in production and by an in-memory map in tests.
type ConversationRepository interface {
	// GetOrCreate returns the conversation for the triple, creating it as
	// ACTIVE when absent. Existing rows are returned whatever their status;
	// terminal conversations are never resurrected or duplicated.
	GetOrCreate(customerIdentifier string, businessID uint, channel string) (*models.Conversation, error)
	Get(id string) (*models.Conversation, error)
	// Append stores the message and advances the conversation's
	// LastMessageAt/UpdatedAt in one step.
	Append(conv *models.Conversation, msg *models.Message) error
	SetStatus(id string, status string) error
	ListByBusiness(businessID uint) ([]models.Conversation, error)
	Messages(conversationID string) ([]models.Message, error)
}

type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) GetOrCreate(customerIdentifier string, businessID uint, channel string) (*models.Conversation, error) {
	id := ConversationID(channel, customerIdentifier, businessID)

	var conv models.Conversation
	result := r.db.Where("id = ?", id).Limit(1).Find(&conv)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return &conv, nil
	}

	conv = models.Conversation{
		ID:                 id,
		Channel:            channel,
		CustomerIdentifier: customerIdentifier,
		BusinessID:         businessID,
		Status:             models.ConversationActive,
		LastMessageAt:      time.Now(),
	}
	if err := r.db.Create(&conv).Error; err != nil {
		// Lost a create race: the other writer's row is the conversation.
		var existing models.Conversation
		if findErr := r.db.Where("id = ?", id).First(&existing).Error; findErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &conv, nil
}

func (r *GormConversationRepository) Get(id string) (*models.Conversation, error) {
	var conv models.Conversation
	result := r.db.Where("id = ?", id).Limit(1).Find(&conv)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrConversationNotFound
	}
	return &conv, nil
}

func (r *GormConversationRepository) Append(conv *models.Conversation, msg *models.Message) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		conv.LastMessageAt = msg.CreatedAt
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]any{"last_message_at": msg.CreatedAt, "updated_at": time.Now()}).Error
	})
}

func (r *GormConversationRepository) SetStatus(id string, status string) error {
	result := r.db.Model(&models.Conversation{}).
		Where("id = ? AND status = ?", id, models.ConversationActive).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var conv models.Conversation
		if r.db.Where("id = ?", id).Limit(1).Find(&conv).RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *GormConversationRepository) ListByBusiness(businessID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.Where("business_id = ?", businessID).
		Order("last_message_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *GormConversationRepository) Messages(conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	return msgs, err
}
