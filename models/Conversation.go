package models

import "time"

// Channels a conversation can live on. The channel is fixed at creation and
// decides which transport delivers outbound replies.
const (
	ChannelSMS   = "SMS"
	ChannelEmail = "EMAIL"
	ChannelInApp = "IN_APP"
)

const (
	ConversationActive   = "ACTIVE"
	ConversationClosed   = "CLOSED"
	ConversationArchived = "ARCHIVED"
)

// Conversation is the ordered exchange between one customer identifier and one
// business, scoped to a single channel. Its ID is derived from that triple, so
// the same customer writing on the same channel always lands in the same row.
type Conversation struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:64"`
	Channel            string    `json:"channel" gorm:"size:16;not null;index"`
	CustomerIdentifier string    `json:"customerIdentifier" gorm:"size:256;not null;index"`
	BusinessID         uint      `json:"businessID" gorm:"not null;index"`
	Status             string    `json:"status" gorm:"size:16;default:ACTIVE;index"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`

	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID;references:ID"`
}
