package repository

import (
	"context"

	"github.com/nivtax/balanca-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LetterRepository interface {
	Create(ctx context.Context, letter *model.Letter) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Letter, error)
	List(ctx context.Context, tenant, status string, page, limit int) ([]model.Letter, int64, error)
	Update(ctx context.Context, letter *model.Letter) error
}

type letterRepository struct {
	db *gorm.DB
}

func NewLetterRepository(db *gorm.DB) LetterRepository {
	return &letterRepository{db: db}
}

func (r *letterRepository) Create(ctx context.Context, letter *model.Letter) error {
	return GetDB(ctx, r.db).Create(letter).Error
}

func (r *letterRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Letter, error) {
	var letter model.Letter
	if err := GetDB(ctx, r.db).Preload("Client").First(&letter, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &letter, nil
}

func (r *letterRepository) List(ctx context.Context, tenant, status string, page, limit int) ([]model.Letter, int64, error) {
	var letters []model.Letter
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Letter{}).Where("tenant = ?", tenant)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Preload("Client").Order("created_at desc").
		Offset(offset).Limit(limit).Find(&letters).Error; err != nil {
		return nil, 0, err
	}

	return letters, total, nil
}

func (r *letterRepository) Update(ctx context.Context, letter *model.Letter) error {
	return GetDB(ctx, r.db).Save(letter).Error
}
