package model

import (
	"time"

	"github.com/google/uuid"
)

// CapitalDeclaration status constants
const (
	DeclarationStatusRequested = "requested"
	DeclarationStatusReceived  = "received"
	DeclarationStatusSubmitted = "submitted"
)

// CapitalDeclaration tracks one client's capital-declaration filing for a tax
// authority deadline. Reminder emails go out while the status is requested.
type CapitalDeclaration struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Tenant         string     `gorm:"type:varchar(50);not null;index" json:"tenant"`
	ClientID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	Client         *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	TaxYear        int        `gorm:"not null" json:"tax_year"`
	DueDate        time.Time  `gorm:"not null;index" json:"due_date"`
	Status         string     `gorm:"type:varchar(20);not null;default:'requested';index" json:"status"`
	ReceivedAt     *time.Time `json:"received_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	LastReminderAt *time.Time `json:"last_reminder_at"`
	Notes          string     `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
