package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionOpenYear           = "OPEN_YEAR"
	ActionChangeStatus       = "CHANGE_STATUS"
	ActionAssignAuditor      = "ASSIGN_AUDITOR"
	ActionConfirmAssignment  = "CONFIRM_ASSIGNMENT"
	ActionUpdateFinancials   = "UPDATE_FINANCIALS"
	ActionCreateClient       = "CREATE_CLIENT"
	ActionUpdateClient       = "UPDATE_CLIENT"
	ActionDeleteClient       = "DELETE_CLIENT"
	ActionCreateLetter       = "CREATE_LETTER"
	ActionRenderLetter       = "RENDER_LETTER"
	ActionSendLetter         = "SEND_LETTER"
	ActionCreateDeclaration  = "CREATE_DECLARATION"
	ActionUpdateDeclaration  = "UPDATE_DECLARATION"
	ActionRemindDeclaration  = "REMIND_DECLARATION"
	ActionCreatePaymentOrder = "CREATE_PAYMENT_ORDER"
	ActionDeleteChatMessage  = "DELETE_CHAT_MESSAGE"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Tenant     string     `gorm:"type:varchar(50);not null;index" json:"tenant"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated job
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
