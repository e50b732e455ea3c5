package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultConversationTitle is assigned when a conversation is created
// without an explicit title.
const DefaultConversationTitle = "New conversation"

// Message roles.
const (
	RoleMessageUser      = "user"
	RoleMessageAssistant = "assistant"
	RoleMessageSystem    = "system"
)

// Conversation represents one chat thread. TenantID and UserID are set at
// creation and never change; every read and write is checked against them.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
	TenantID  uuid.UUID `gorm:"type:uuid;index"`
	UserID    uuid.UUID `gorm:"type:uuid;index"`
	Title     string
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Title == "" {
		c.Title = DefaultConversationTitle
	}
	return nil
}

// Message represents a single turn fragment in a conversation. Messages are
// immutable once written and ordered by creation time within a conversation.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt      time.Time
	ConversationID uuid.UUID `gorm:"type:uuid;index"`
	Role           string    `gorm:"type:varchar(10);check:role IN ('user', 'assistant', 'system')"`
	Content        string
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
