package repository

import (
	"context"
	"time"

	"github.com/nivtax/balanca-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepository interface {
	Insert(ctx context.Context, msg *model.ChatMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ChatMessage, error)
	// ListPage returns up to limit non-deleted messages for the case, strictly
	// before the cursor when one is given, ordered ascending by created_at.
	ListPage(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]model.ChatMessage, error)
	SoftDelete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error
	CountSince(ctx context.Context, caseID uuid.UUID, since time.Time) (int64, error)
	UpsertReadState(ctx context.Context, caseID, userID uuid.UUID, at time.Time) error
	GetReadState(ctx context.Context, caseID, userID uuid.UUID) (*model.ChatReadState, error)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Insert(ctx context.Context, msg *model.ChatMessage) error {
	return GetDB(ctx, r.db).Create(msg).Error
}

func (r *chatRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	if err := GetDB(ctx, r.db).Preload("Author").First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *chatRepository) ListPage(ctx context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage

	// Fetch the newest page descending, then flip to ascending for rendering.
	query := GetDB(ctx, r.db).Preload("Author").
		Where("case_id = ? AND deleted = false", caseID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}
	if err := query.Order("created_at desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *chatRepository) SoftDelete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	now := time.Now()
	return GetDB(ctx, r.db).Model(&model.ChatMessage{}).Where("id = ?", id).Updates(map[string]interface{}{
		"deleted":       true,
		"deleted_at":    now,
		"deleted_by_id": actorID,
	}).Error
}

func (r *chatRepository) CountSince(ctx context.Context, caseID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ChatMessage{}).
		Where("case_id = ? AND deleted = false AND created_at > ?", caseID, since).
		Count(&count).Error
	return count, err
}

func (r *chatRepository) UpsertReadState(ctx context.Context, caseID, userID uuid.UUID, at time.Time) error {
	state := model.ChatReadState{CaseID: caseID, UserID: userID, LastReadAt: at}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "case_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
	}).Create(&state).Error
}

func (r *chatRepository) GetReadState(ctx context.Context, caseID, userID uuid.UUID) (*model.ChatReadState, error) {
	var state model.ChatReadState
	if err := GetDB(ctx, r.db).
		First(&state, "case_id = ? AND user_id = ?", caseID, userID).Error; err != nil {
		return nil, err
	}
	return &state, nil
}
