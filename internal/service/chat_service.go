package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const chatPageLimit = 50

// --- DTOs ---

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=4000"`
}

type ChatMessageResponse struct {
	ID          uuid.UUID  `json:"id"`
	CaseID      uuid.UUID  `json:"case_id"`
	AuthorID    *uuid.UUID `json:"author_id"`
	AuthorName  string     `json:"author_name,omitempty"`
	AuthorEmail string     `json:"author_email,omitempty"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	CreatedAt   time.Time  `json:"created_at"`
}

// --- Interface ---

type ChatService interface {
	// FetchPage returns up to limit visible messages ascending by created_at,
	// strictly before the cursor when one is given.
	FetchPage(ctx context.Context, actor Actor, caseID uuid.UUID, limit int, before *time.Time) ([]ChatMessageResponse, error)
	Send(ctx context.Context, actor Actor, caseID uuid.UUID, req SendMessageRequest) (*ChatMessageResponse, error)
	Delete(ctx context.Context, actor Actor, messageID uuid.UUID) error
	MarkAsRead(ctx context.Context, actor Actor, caseID uuid.UUID) error
	UnreadCount(ctx context.Context, actor Actor, caseID uuid.UUID) (int64, error)
	// CanAccess is the chat gate re-checked at the data boundary; it also backs
	// the websocket subscribe check.
	CanAccess(ctx context.Context, tenant, caseID, userID string, role permission.Role) bool
}

type chatService struct {
	chat  repository.ChatRepository
	cases repository.BalanceCaseRepository
	audit repository.AuditRepository
	txm   repository.TransactionManager
	hub   Publisher
	rdb   *redis.Client // optional; nil degrades to the ChatReadState table
}

func NewChatService(
	chat repository.ChatRepository,
	cases repository.BalanceCaseRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
	hub Publisher,
	rdb *redis.Client,
) ChatService {
	return &chatService{chat: chat, cases: cases, audit: audit, txm: txm, hub: hub, rdb: rdb}
}

func mapMessageToResponse(msg *model.ChatMessage) *ChatMessageResponse {
	resp := &ChatMessageResponse{
		ID:          msg.ID,
		CaseID:      msg.CaseID,
		AuthorID:    msg.AuthorID,
		Content:     msg.Content,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt,
	}
	if msg.Author != nil {
		resp.AuthorName = msg.Author.DisplayName
		resp.AuthorEmail = msg.Author.Email
	}
	return resp
}

func (s *chatService) CanAccess(ctx context.Context, tenant, caseID, userID string, role permission.Role) bool {
	if !permission.Has(role, permission.ActionViewChat) {
		return false
	}

	id, err := uuid.Parse(caseID)
	if err != nil {
		return false
	}
	bc, err := s.cases.GetByID(ctx, id)
	if err != nil || bc.Tenant != tenant {
		return false
	}

	auditorID := ""
	if bc.AuditorID != nil {
		auditorID = bc.AuditorID.String()
	}
	return permission.CanAccessChat(role, userID, permission.ChatCase{AuditorID: auditorID})
}

func (s *chatService) requireAccess(ctx context.Context, actor Actor, caseID uuid.UUID) error {
	if !s.CanAccess(ctx, actor.Tenant, caseID.String(), actor.UserID.String(), actor.Role) {
		return ErrForbidden
	}
	return nil
}

func (s *chatService) FetchPage(ctx context.Context, actor Actor, caseID uuid.UUID, limit int, before *time.Time) ([]ChatMessageResponse, error) {
	if err := s.requireAccess(ctx, actor, caseID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > chatPageLimit {
		limit = chatPageLimit
	}

	msgs, err := s.chat.ListPage(ctx, caseID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	res := make([]ChatMessageResponse, 0, len(msgs))
	for i := range msgs {
		res = append(res, *mapMessageToResponse(&msgs[i]))
	}
	return res, nil
}

func (s *chatService) Send(ctx context.Context, actor Actor, caseID uuid.UUID, req SendMessageRequest) (*ChatMessageResponse, error) {
	if !permission.Has(actor.Role, permission.ActionSendChat) {
		return nil, ErrForbidden
	}
	if err := s.requireAccess(ctx, actor, caseID); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("message content is empty")
	}

	msg := &model.ChatMessage{
		Tenant:      actor.Tenant,
		CaseID:      caseID,
		AuthorID:    &actor.UserID,
		Content:     content,
		MessageType: model.MessageTypeUser,
	}
	if err := s.chat.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	// Re-read with the author preloaded so the broadcast carries the sender.
	stored, err := s.chat.GetByID(ctx, msg.ID)
	if err != nil {
		stored = msg
	}

	if s.hub != nil {
		payload, err := json.Marshal(mapMessageToResponse(stored))
		if err == nil {
			s.hub.Publish(actor.Tenant, caseID.String(), payload)
		} else {
			logrus.WithError(err).Warn("failed to marshal chat broadcast")
		}
	}

	return mapMessageToResponse(stored), nil
}

func (s *chatService) Delete(ctx context.Context, actor Actor, messageID uuid.UUID) error {
	msg, err := s.chat.GetByID(ctx, messageID)
	if err != nil {
		return ErrNotFound
	}
	if msg.Tenant != actor.Tenant {
		return ErrNotFound
	}

	// Authors may delete their own messages; admins anyone's.
	isAuthor := msg.AuthorID != nil && *msg.AuthorID == actor.UserID
	if !isAuthor && actor.Role != permission.RoleAdmin {
		return ErrForbidden
	}

	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.chat.SoftDelete(txCtx, messageID, actor.UserID); err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		payload, _ := json.Marshal(map[string]interface{}{"message_id": messageID})
		entry := &model.AuditLog{
			Tenant:   actor.Tenant,
			UserID:   &actor.UserID,
			Action:   model.ActionDeleteChatMessage,
			EntityID: messageID.String(),
			Details:  string(payload),
		}
		if err := s.audit.Log(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
}

func readStateKey(caseID, userID uuid.UUID) string {
	return "chat:read:" + caseID.String() + ":" + userID.String()
}

// MarkAsRead is fire-and-forget from the client's perspective; issued after
// the initial fetch completes. Redis fronts the counter, the table is the
// durable copy.
func (s *chatService) MarkAsRead(ctx context.Context, actor Actor, caseID uuid.UUID) error {
	if err := s.requireAccess(ctx, actor, caseID); err != nil {
		return err
	}

	now := time.Now()
	if err := s.chat.UpsertReadState(ctx, caseID, actor.UserID, now); err != nil {
		return fmt.Errorf("failed to persist read state: %w", err)
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, readStateKey(caseID, actor.UserID), now.Format(time.RFC3339Nano), 24*time.Hour).Err(); err != nil {
			logrus.WithError(err).Debug("redis read-state set failed")
		}
	}
	return nil
}

func (s *chatService) UnreadCount(ctx context.Context, actor Actor, caseID uuid.UUID) (int64, error) {
	if err := s.requireAccess(ctx, actor, caseID); err != nil {
		return 0, err
	}

	var since time.Time
	fromCache := false
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, readStateKey(caseID, actor.UserID)).Result()
		if err == nil {
			if parsed, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
				since = parsed
				fromCache = true
			}
		} else if err != redis.Nil {
			logrus.WithError(err).Debug("redis read-state get failed")
		}
	}
	if !fromCache {
		state, err := s.chat.GetReadState(ctx, caseID, actor.UserID)
		if err == nil {
			since = state.LastReadAt
		}
		// No state at all: everything counts as unread (since = zero time).
	}

	return s.chat.CountSince(ctx, caseID, since)
}
