package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage type constants
const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

// ChatMessage belongs to exactly one BalanceCase. System messages are written
// by the server on status changes; user messages via the send endpoint.
// Deletion is soft only: the row is retained and the feed filters it out.
type ChatMessage struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Tenant      string    `gorm:"type:varchar(50);not null;index" json:"tenant"`
	CaseID      uuid.UUID `gorm:"type:uuid;not null;index:idx_chat_case_created" json:"case_id"`
	AuthorID    *uuid.UUID `gorm:"type:uuid;index" json:"author_id"`
	Author      *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	MessageType string     `gorm:"type:varchar(10);not null;default:'user'" json:"message_type"`

	Deleted     bool       `gorm:"not null;default:false;index" json:"deleted"`
	DeletedAt   *time.Time `json:"deleted_at"`
	DeletedByID *uuid.UUID `gorm:"type:uuid" json:"deleted_by_id"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_chat_case_created" json:"created_at"`
}

// ChatReadState tracks the last time a user caught up on a case's chat.
// Redis fronts this table for unread counters; the row is the durable copy.
type ChatReadState struct {
	CaseID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"case_id"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	LastReadAt time.Time `gorm:"not null" json:"last_read_at"`
}
