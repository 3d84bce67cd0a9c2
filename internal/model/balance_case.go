package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceCase is one client's annual-balance-sheet workflow instance for a
// given tax year. Status always holds one of the workflow statuses; the
// milestone timestamp for a status is stamped exactly when the case enters it
// and is never cleared by a forward transition.
type BalanceCase struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Tenant string    `gorm:"type:varchar(50);not null;index:idx_case_tenant_client_year,unique" json:"tenant"`

	ClientID uuid.UUID `gorm:"type:uuid;not null;index:idx_case_tenant_client_year,unique" json:"client_id"`
	Client   *Client   `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	TaxYear  int       `gorm:"not null;index:idx_case_tenant_client_year,unique" json:"tax_year"`

	Status string `gorm:"type:varchar(30);not null;default:'waiting_for_materials';index" json:"status"`

	// Milestone timestamps, stamped on entering the matching status.
	MaterialsReceivedAt *time.Time `json:"materials_received_at"`
	WorkStartedAt       *time.Time `json:"work_started_at"`
	WorkCompletedAt     *time.Time `json:"work_completed_at"`
	OfficeApprovedAt    *time.Time `json:"office_approved_at"`
	ReportTransmittedAt *time.Time `json:"report_transmitted_at"`
	AdvancesUpdatedAt   *time.Time `json:"advances_updated_at"`

	AuditorID            *uuid.UUID `gorm:"type:uuid;index" json:"auditor_id"`
	Auditor              *User      `gorm:"foreignKey:AuditorID" json:"auditor,omitempty"`
	AuditorConfirmed     bool       `gorm:"not null;default:false" json:"auditor_confirmed"`
	AuditorConfirmedAt   *time.Time `json:"auditor_confirmed_at"`

	AdvancesAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"advances_amount"`
	TaxAmount        decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"tax_amount"`
	Turnover         decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"turnover"`
	AdvanceRate      decimal.Decimal `gorm:"type:numeric(6,4);not null;default:0" json:"advance_rate"`
	AdvanceRateAlert bool            `gorm:"not null;default:false" json:"advance_rate_alert"`

	Notes  string `gorm:"type:text" json:"notes"`
	Active bool   `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StatusHistory is an append-only log of workflow transitions. FromStatus is
// null for the row written at case creation. Rows are never updated or
// deleted.
type StatusHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID     uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	FromStatus *string   `gorm:"type:varchar(30)" json:"from_status"`
	ToStatus   string    `gorm:"type:varchar(30);not null" json:"to_status"`
	ActorID    *uuid.UUID `gorm:"type:uuid" json:"actor_id"`
	Actor      *User      `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Note       string     `gorm:"type:text" json:"note"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
