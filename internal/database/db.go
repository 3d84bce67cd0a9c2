package database

import (
	"github.com/nivtax/balanca-backend/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Client{},
		&model.BalanceCase{},
		&model.StatusHistory{},
		&model.ChatMessage{},
		&model.ChatReadState{},
		&model.Letter{},
		&model.CapitalDeclaration{},
		&model.PaymentOrder{},
		&model.AuditLog{},
	)
	if err != nil {
		logrus.WithError(err).Warn("Failed to auto-migrate models")
	}

	return db, nil
}
