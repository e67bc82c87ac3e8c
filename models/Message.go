package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MessageInbound  = "in"
	MessageOutbound = "out"
)

// Message is one entry in a conversation. Messages are append-only: once
// created they are never edited or deleted.
type Message struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string         `json:"conversationID" gorm:"size:64;not null;index"`
	Direction      string         `json:"direction" gorm:"size:4;not null"`
	From           string         `json:"from" gorm:"size:256"`
	To             string         `json:"to" gorm:"size:256"`
	Content        string         `json:"content" gorm:"type:text"`
	Channel        string         `json:"channel" gorm:"size:16"`
	InReplyTo      *string        `json:"inReplyTo" gorm:"size:36"` // inbound message this reply answers
	Metadata       datatypes.JSON `json:"metadata"`
	CreatedAt      time.Time      `json:"createdAt" gorm:"index"`
}
