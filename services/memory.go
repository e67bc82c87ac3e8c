package services

import (
	"sort"
	"sync"
	"time"

	"tg-tires-server/models"
)

// MemoryConversationRepository keeps conversations in process memory. Used by
// tests and by standalone runs without Postgres; it honors the same contract
// as the GORM repository.
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	convs    map[string]*models.Conversation
	messages map[string][]models.Message
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		convs:    make(map[string]*models.Conversation),
		messages: make(map[string][]models.Message),
	}
}

func (r *MemoryConversationRepository) GetOrCreate(customerIdentifier string, businessID uint, channel string) (*models.Conversation, error) {
	id := ConversationID(channel, customerIdentifier, businessID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.convs[id]; ok {
		clone := *conv
		return &clone, nil
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:                 id,
		Channel:            channel,
		CustomerIdentifier: customerIdentifier,
		BusinessID:         businessID,
		Status:             models.ConversationActive,
		LastMessageAt:      now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.convs[id] = conv
	clone := *conv
	return &clone, nil
}

func (r *MemoryConversationRepository) Get(id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	clone := *conv
	return &clone, nil
}

func (r *MemoryConversationRepository) Append(conv *models.Conversation, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.convs[conv.ID]
	if !ok {
		return ErrConversationNotFound
	}
	r.messages[conv.ID] = append(r.messages[conv.ID], *msg)
	stored.LastMessageAt = msg.CreatedAt
	stored.UpdatedAt = time.Now()
	conv.LastMessageAt = stored.LastMessageAt
	conv.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryConversationRepository) SetStatus(id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	if conv.Status != models.ConversationActive {
		return ErrInvalidTransition
	}
	conv.Status = status
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryConversationRepository) ListByBusiness(businessID uint) ([]models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var convs []models.Conversation
	for _, conv := range r.convs {
		if conv.BusinessID == businessID {
			convs = append(convs, *conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})
	return convs, nil
}

func (r *MemoryConversationRepository) Messages(conversationID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := make([]models.Message, len(r.messages[conversationID]))
	copy(msgs, r.messages[conversationID])
	return msgs, nil
}

// MemoryNotificationSink collects notifications for tests and standalone runs.
type MemoryNotificationSink struct {
	mu            sync.Mutex
	Notifications []models.Notification
}

func (s *MemoryNotificationSink) Notify(n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notifications = append(s.Notifications, *n)
	return nil
}
