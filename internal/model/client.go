package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a firm customer (the accounting firm's client, not an API consumer).
type Client struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Tenant    string         `gorm:"type:varchar(50);not null;index" json:"tenant"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	TaxID     string         `gorm:"type:varchar(20);not null;index" json:"tax_id"`
	Email     string         `gorm:"type:varchar(255)" json:"email"`
	Phone     string         `gorm:"type:varchar(20)" json:"phone"`
	Address   string         `gorm:"type:varchar(500)" json:"address"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
