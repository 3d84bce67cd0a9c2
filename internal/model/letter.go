package model

import (
	"time"

	"github.com/google/uuid"
)

// Letter status constants
const (
	LetterStatusDraft    = "draft"
	LetterStatusRendered = "rendered"
	LetterStatusSent     = "sent"
)

// Letter is an outbound client letter: drafted from a template, rendered to a
// stored PDF, then emailed. DocumentURL is set by the render step.
type Letter struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Tenant      string     `gorm:"type:varchar(50);not null;index" json:"tenant"`
	ClientID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	Client      *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	TemplateKey string     `gorm:"type:varchar(100);not null" json:"template_key"`
	Subject     string     `gorm:"type:varchar(255);not null" json:"subject"`
	Body        string     `gorm:"type:text" json:"body"`
	Status      string     `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	DocumentURL string     `gorm:"type:varchar(500)" json:"document_url"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedByID *uuid.UUID `gorm:"type:uuid" json:"created_by_id"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
