package repository

import (
	"context"
	"time"

	"github.com/nivtax/balanca-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeclarationRepository interface {
	Create(ctx context.Context, decl *model.CapitalDeclaration) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.CapitalDeclaration, error)
	List(ctx context.Context, tenant, status string, page, limit int) ([]model.CapitalDeclaration, int64, error)
	ListDueForReminder(ctx context.Context, tenant string, before time.Time) ([]model.CapitalDeclaration, error)
	Update(ctx context.Context, decl *model.CapitalDeclaration) error
}

type declarationRepository struct {
	db *gorm.DB
}

func NewDeclarationRepository(db *gorm.DB) DeclarationRepository {
	return &declarationRepository{db: db}
}

func (r *declarationRepository) Create(ctx context.Context, decl *model.CapitalDeclaration) error {
	return GetDB(ctx, r.db).Create(decl).Error
}

func (r *declarationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CapitalDeclaration, error) {
	var decl model.CapitalDeclaration
	if err := GetDB(ctx, r.db).Preload("Client").First(&decl, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &decl, nil
}

func (r *declarationRepository) List(ctx context.Context, tenant, status string, page, limit int) ([]model.CapitalDeclaration, int64, error) {
	var decls []model.CapitalDeclaration
	var total int64

	query := GetDB(ctx, r.db).Model(&model.CapitalDeclaration{}).Where("tenant = ?", tenant)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Preload("Client").Order("due_date asc").
		Offset(offset).Limit(limit).Find(&decls).Error; err != nil {
		return nil, 0, err
	}

	return decls, total, nil
}

// ListDueForReminder returns requested declarations whose due date falls
// before the cutoff and that have not been reminded in the last day.
func (r *declarationRepository) ListDueForReminder(ctx context.Context, tenant string, before time.Time) ([]model.CapitalDeclaration, error) {
	var decls []model.CapitalDeclaration
	dayAgo := time.Now().Add(-24 * time.Hour)
	if err := GetDB(ctx, r.db).Preload("Client").
		Where("tenant = ? AND status = ? AND due_date <= ?", tenant, model.DeclarationStatusRequested, before).
		Where("last_reminder_at IS NULL OR last_reminder_at < ?", dayAgo).
		Find(&decls).Error; err != nil {
		return nil, err
	}
	return decls, nil
}

func (r *declarationRepository) Update(ctx context.Context, decl *model.CapitalDeclaration) error {
	return GetDB(ctx, r.db).Save(decl).Error
}
