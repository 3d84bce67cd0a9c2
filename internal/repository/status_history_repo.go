package repository

import (
	"context"

	"github.com/nivtax/balanca-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusHistoryRepository is append-only: entries are created once per
// transition and never updated or deleted.
type StatusHistoryRepository interface {
	Append(ctx context.Context, entry *model.StatusHistory) error
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]model.StatusHistory, error)
}

type statusHistoryRepository struct {
	db *gorm.DB
}

func NewStatusHistoryRepository(db *gorm.DB) StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

func (r *statusHistoryRepository) Append(ctx context.Context, entry *model.StatusHistory) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *statusHistoryRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]model.StatusHistory, error) {
	var entries []model.StatusHistory
	if err := GetDB(ctx, r.db).Preload("Actor").
		Where("case_id = ?", caseID).Order("created_at asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
