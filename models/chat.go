package models

import "time"

// ConversationStage tracks where the chat session is in the sales conversation
type ConversationStage string

const (
	ConversationInitial       ConversationStage = "initial"
	ConversationNeedDiscovery ConversationStage = "need_discovery"
)

// ChatSession is one conversation between the applicant and the assistant
type ChatSession struct {
	ID                string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ApplicantID       uint              `gorm:"not null;index" json:"applicant_id"`
	Status            string            `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	ConversationStage ConversationStage `gorm:"type:varchar(30);not null;default:'initial'" json:"conversation_stage"`
	DiscoveredIntent  string            `gorm:"size:50" json:"discovered_intent,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatRole identifies the author of a chat message
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is a single turn of a chat session. Metadata holds the
// structured result narrated by the message, encoded as JSON.
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID string    `gorm:"type:varchar(36);not null;index" json:"session_id"`
	Role      ChatRole  `gorm:"type:varchar(20);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	AgentName string    `gorm:"size:50" json:"agent_name,omitempty"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
