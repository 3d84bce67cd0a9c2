package repository

import (
	"context"

	"github.com/nivtax/balanca-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CaseFilter narrows the paginated case list.
type CaseFilter struct {
	Tenant    string
	TaxYear   int
	Status    string
	AuditorID string
	ClientID  string
	Page      int
	Limit     int
}

type BalanceCaseRepository interface {
	Create(ctx context.Context, bc *model.BalanceCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.BalanceCase, error)
	GetByClientYear(ctx context.Context, tenant string, clientID uuid.UUID, year int) (*model.BalanceCase, error)
	ListByClient(ctx context.Context, tenant string, clientID uuid.UUID) ([]model.BalanceCase, error)
	List(ctx context.Context, filter CaseFilter) ([]model.BalanceCase, int64, error)
	Update(ctx context.Context, bc *model.BalanceCase) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
}

type balanceCaseRepository struct {
	db *gorm.DB
}

func NewBalanceCaseRepository(db *gorm.DB) BalanceCaseRepository {
	return &balanceCaseRepository{db: db}
}

func (r *balanceCaseRepository) Create(ctx context.Context, bc *model.BalanceCase) error {
	return GetDB(ctx, r.db).Create(bc).Error
}

func (r *balanceCaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BalanceCase, error) {
	var bc model.BalanceCase
	if err := GetDB(ctx, r.db).Preload("Client").Preload("Auditor").
		First(&bc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &bc, nil
}

func (r *balanceCaseRepository) GetByClientYear(ctx context.Context, tenant string, clientID uuid.UUID, year int) (*model.BalanceCase, error) {
	var bc model.BalanceCase
	if err := GetDB(ctx, r.db).
		First(&bc, "tenant = ? AND client_id = ? AND tax_year = ?", tenant, clientID, year).Error; err != nil {
		return nil, err
	}
	return &bc, nil
}

func (r *balanceCaseRepository) ListByClient(ctx context.Context, tenant string, clientID uuid.UUID) ([]model.BalanceCase, error) {
	var cases []model.BalanceCase
	if err := GetDB(ctx, r.db).Preload("Auditor").
		Where("tenant = ? AND client_id = ?", tenant, clientID).
		Order("tax_year desc").Find(&cases).Error; err != nil {
		return nil, err
	}
	return cases, nil
}

func (r *balanceCaseRepository) List(ctx context.Context, filter CaseFilter) ([]model.BalanceCase, int64, error) {
	var cases []model.BalanceCase
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.BalanceCase{}).Where("tenant = ?", filter.Tenant)
	if filter.TaxYear != 0 {
		query = query.Where("tax_year = ?", filter.TaxYear)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AuditorID != "" {
		query = query.Where("auditor_id = ?", filter.AuditorID)
	}
	if filter.ClientID != "" {
		query = query.Where("client_id = ?", filter.ClientID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Client").Preload("Auditor").
		Order("updated_at desc").Offset(offset).Limit(filter.Limit).Find(&cases).Error; err != nil {
		return nil, 0, err
	}

	return cases, total, nil
}

func (r *balanceCaseRepository) Update(ctx context.Context, bc *model.BalanceCase) error {
	return GetDB(ctx, r.db).Save(bc).Error
}

// UpdateFields issues a partial update; used for status changes so milestone
// timestamps already set on the row are left untouched.
func (r *balanceCaseRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return GetDB(ctx, r.db).Model(&model.BalanceCase{}).Where("id = ?", id).Updates(fields).Error
}
