package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nivtax/balanca-backend/internal/mailer"
	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/pdf"
	"github.com/nivtax/balanca-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreateLetterRequest struct {
	ClientID    string `json:"client_id" binding:"required,uuid"`
	TemplateKey string `json:"template_key" binding:"required"`
	Subject     string `json:"subject" binding:"required,max=255"`
	Body        string `json:"body"`
}

type LetterResponse struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	ClientName  string     `json:"client_name,omitempty"`
	TemplateKey string     `json:"template_key"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	DocumentURL string     `json:"document_url"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type LetterService interface {
	CreateLetter(ctx context.Context, actor Actor, req CreateLetterRequest) (*LetterResponse, error)
	GetLetter(ctx context.Context, actor Actor, id uuid.UUID) (*LetterResponse, error)
	ListLetters(ctx context.Context, actor Actor, status string, page, limit int) ([]LetterResponse, int64, error)
	// RenderLetter calls the PDF endpoint and records the stored-file URL.
	RenderLetter(ctx context.Context, actor Actor, id uuid.UUID) (*LetterResponse, error)
	// SendLetter emails the rendered document to the client.
	SendLetter(ctx context.Context, actor Actor, id uuid.UUID) (*LetterResponse, error)
}

type letterService struct {
	letters  repository.LetterRepository
	clients  repository.ClientRepository
	audit    repository.AuditRepository
	txm      repository.TransactionManager
	renderer *pdf.Renderer
	mail     *mailer.Mailer
}

func NewLetterService(
	letters repository.LetterRepository,
	clients repository.ClientRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
	renderer *pdf.Renderer,
	mail *mailer.Mailer,
) LetterService {
	return &letterService{letters: letters, clients: clients, audit: audit, txm: txm, renderer: renderer, mail: mail}
}

func mapLetterToResponse(l *model.Letter) *LetterResponse {
	resp := &LetterResponse{
		ID:          l.ID,
		ClientID:    l.ClientID,
		TemplateKey: l.TemplateKey,
		Subject:     l.Subject,
		Body:        l.Body,
		Status:      l.Status,
		DocumentURL: l.DocumentURL,
		SentAt:      l.SentAt,
		CreatedAt:   l.CreatedAt,
	}
	if l.Client != nil {
		resp.ClientName = l.Client.Name
	}
	return resp
}

func (s *letterService) CreateLetter(ctx context.Context, actor Actor, req CreateLetterRequest) (*LetterResponse, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client_id: %w", err)
	}
	if _, err := s.clients.GetByID(ctx, clientID); err != nil {
		return nil, ErrNotFound
	}

	letter := &model.Letter{
		Tenant:      actor.Tenant,
		ClientID:    clientID,
		TemplateKey: req.TemplateKey,
		Subject:     req.Subject,
		Body:        req.Body,
		Status:      model.LetterStatusDraft,
		CreatedByID: &actor.UserID,
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.letters.Create(txCtx, letter); err != nil {
			return fmt.Errorf("failed to create letter: %w", err)
		}
		payload, _ := json.Marshal(map[string]interface{}{"template_key": req.TemplateKey})
		return s.audit.Log(txCtx, &model.AuditLog{
			Tenant:   actor.Tenant,
			UserID:   &actor.UserID,
			Action:   model.ActionCreateLetter,
			EntityID: letter.ID.String(),
			Details:  string(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	return mapLetterToResponse(letter), nil
}

func (s *letterService) GetLetter(ctx context.Context, actor Actor, id uuid.UUID) (*LetterResponse, error) {
	letter, err := s.letters.GetByID(ctx, id)
	if err != nil || letter.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}
	return mapLetterToResponse(letter), nil
}

func (s *letterService) ListLetters(ctx context.Context, actor Actor, status string, page, limit int) ([]LetterResponse, int64, error) {
	letters, total, err := s.letters.List(ctx, actor.Tenant, status, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]LetterResponse, 0, len(letters))
	for i := range letters {
		res = append(res, *mapLetterToResponse(&letters[i]))
	}
	return res, total, nil
}

func (s *letterService) RenderLetter(ctx context.Context, actor Actor, id uuid.UUID) (*LetterResponse, error) {
	letter, err := s.letters.GetByID(ctx, id)
	if err != nil || letter.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}

	clientName := ""
	if letter.Client != nil {
		clientName = letter.Client.Name
	}

	url, err := s.renderer.Render(ctx, pdf.RenderRequest{
		TemplateKey: letter.TemplateKey,
		Subject:     letter.Subject,
		BodyHTML:    letter.Body,
		ClientName:  clientName,
	})
	if err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}

	letter.DocumentURL = url
	letter.Status = model.LetterStatusRendered
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.letters.Update(txCtx, letter); err != nil {
			return fmt.Errorf("failed to store rendered letter: %w", err)
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			Tenant:   actor.Tenant,
			UserID:   &actor.UserID,
			Action:   model.ActionRenderLetter,
			EntityID: letter.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	return mapLetterToResponse(letter), nil
}

func (s *letterService) SendLetter(ctx context.Context, actor Actor, id uuid.UUID) (*LetterResponse, error) {
	letter, err := s.letters.GetByID(ctx, id)
	if err != nil || letter.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}
	if letter.Status != model.LetterStatusRendered {
		return nil, fmt.Errorf("letter must be rendered before sending")
	}
	if letter.Client == nil || letter.Client.Email == "" {
		return nil, fmt.Errorf("client has no email address")
	}

	msgID, err := s.mail.Send(ctx, mailer.Message{
		To:          []string{letter.Client.Email},
		Subject:     letter.Subject,
		DocumentURL: letter.DocumentURL,
	})
	if err != nil {
		return nil, fmt.Errorf("email delivery failed: %w", err)
	}

	now := time.Now()
	letter.Status = model.LetterStatusSent
	letter.SentAt = &now
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.letters.Update(txCtx, letter); err != nil {
			return fmt.Errorf("failed to mark letter sent: %w", err)
		}
		payload, _ := json.Marshal(map[string]interface{}{"message_id": msgID})
		return s.audit.Log(txCtx, &model.AuditLog{
			Tenant:   actor.Tenant,
			UserID:   &actor.UserID,
			Action:   model.ActionSendLetter,
			EntityID: letter.ID.String(),
			Details:  string(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"letter": letter.ID, "message_id": msgID}).Info("letter sent")
	return mapLetterToResponse(letter), nil
}
