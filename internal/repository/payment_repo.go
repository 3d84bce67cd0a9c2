package repository

import (
	"context"

	"github.com/nivtax/balanca-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, order *model.PaymentOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.PaymentOrder, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]model.PaymentOrder, error)
	Update(ctx context.Context, order *model.PaymentOrder) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, order *model.PaymentOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	if err := GetDB(ctx, r.db).Preload("Case").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *paymentRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]model.PaymentOrder, error) {
	var orders []model.PaymentOrder
	if err := GetDB(ctx, r.db).Where("case_id = ?", caseID).
		Order("created_at desc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *paymentRepository) Update(ctx context.Context, order *model.PaymentOrder) error {
	return GetDB(ctx, r.db).Save(order).Error
}
