package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment method and status constants
const (
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCheck        = "check"

	PaymentStatusPending   = "pending"
	PaymentStatusRedirected = "redirected"
	PaymentStatusPaid       = "paid"
	PaymentStatusCancelled  = "cancelled"
)

// PaymentOrder is a fee charged for a balance case. The gateway redirect URL
// is recorded when the payer is handed off to the hosted payment page;
// bank-transfer and check orders get locally rendered instructions instead.
type PaymentOrder struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Tenant         string          `gorm:"type:varchar(50);not null;index" json:"tenant"`
	CaseID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"case_id"`
	Case           *BalanceCase    `gorm:"foreignKey:CaseID" json:"case,omitempty"`
	Amount         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	DiscountRate   decimal.Decimal `gorm:"type:numeric(5,4);not null;default:0" json:"discount_rate"`
	ChargedAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"charged_amount"`
	Method         string          `gorm:"type:varchar(20);not null" json:"method"`
	Status         string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	RedirectURL    string          `gorm:"type:varchar(500)" json:"redirect_url"`
	PaidAt         *time.Time      `json:"paid_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
