package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nivtax/balanca-backend/internal/mailer"
	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreateDeclarationRequest struct {
	ClientID string `json:"client_id" binding:"required,uuid"`
	TaxYear  int    `json:"tax_year" binding:"required,min=2000,max=2100"`
	DueDate  string `json:"due_date" binding:"required,datetime=2006-01-02"`
	Notes    string `json:"notes"`
}

type UpdateDeclarationRequest struct {
	Status string `json:"status" binding:"omitempty,oneof=requested received submitted"`
	Notes  string `json:"notes"`
}

type DeclarationResponse struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	ClientName     string     `json:"client_name,omitempty"`
	TaxYear        int        `json:"tax_year"`
	DueDate        time.Time  `json:"due_date"`
	Status         string     `json:"status"`
	ReceivedAt     *time.Time `json:"received_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	LastReminderAt *time.Time `json:"last_reminder_at"`
	Notes          string     `json:"notes"`
}

type DeclarationService interface {
	CreateDeclaration(ctx context.Context, actor Actor, req CreateDeclarationRequest) (*DeclarationResponse, error)
	ListDeclarations(ctx context.Context, actor Actor, status string, page, limit int) ([]DeclarationResponse, int64, error)
	UpdateDeclaration(ctx context.Context, actor Actor, id uuid.UUID, req UpdateDeclarationRequest) (*DeclarationResponse, error)
	// SendReminders emails every requested declaration due within the window.
	SendReminders(ctx context.Context, actor Actor, window time.Duration) (int, error)
}

type declarationService struct {
	decls   repository.DeclarationRepository
	clients repository.ClientRepository
	audit   repository.AuditRepository
	txm     repository.TransactionManager
	mail    *mailer.Mailer
}

func NewDeclarationService(
	decls repository.DeclarationRepository,
	clients repository.ClientRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
	mail *mailer.Mailer,
) DeclarationService {
	return &declarationService{decls: decls, clients: clients, audit: audit, txm: txm, mail: mail}
}

func mapDeclarationToResponse(d *model.CapitalDeclaration) *DeclarationResponse {
	resp := &DeclarationResponse{
		ID:             d.ID,
		ClientID:       d.ClientID,
		TaxYear:        d.TaxYear,
		DueDate:        d.DueDate,
		Status:         d.Status,
		ReceivedAt:     d.ReceivedAt,
		SubmittedAt:    d.SubmittedAt,
		LastReminderAt: d.LastReminderAt,
		Notes:          d.Notes,
	}
	if d.Client != nil {
		resp.ClientName = d.Client.Name
	}
	return resp
}

func (s *declarationService) CreateDeclaration(ctx context.Context, actor Actor, req CreateDeclarationRequest) (*DeclarationResponse, error) {
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client_id: %w", err)
	}
	if _, err := s.clients.GetByID(ctx, clientID); err != nil {
		return nil, ErrNotFound
	}

	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid due_date: %w", err)
	}

	decl := &model.CapitalDeclaration{
		Tenant:   actor.Tenant,
		ClientID: clientID,
		TaxYear:  req.TaxYear,
		DueDate:  dueDate,
		Status:   model.DeclarationStatusRequested,
		Notes:    req.Notes,
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.decls.Create(txCtx, decl); err != nil {
			return fmt.Errorf("failed to create declaration: %w", err)
		}
		payload, _ := json.Marshal(map[string]interface{}{"tax_year": req.TaxYear, "due_date": req.DueDate})
		return s.audit.Log(txCtx, &model.AuditLog{
			Tenant:   actor.Tenant,
			UserID:   &actor.UserID,
			Action:   model.ActionCreateDeclaration,
			EntityID: decl.ID.String(),
			Details:  string(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	return mapDeclarationToResponse(decl), nil
}

func (s *declarationService) ListDeclarations(ctx context.Context, actor Actor, status string, page, limit int) ([]DeclarationResponse, int64, error) {
	decls, total, err := s.decls.List(ctx, actor.Tenant, status, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]DeclarationResponse, 0, len(decls))
	for i := range decls {
		res = append(res, *mapDeclarationToResponse(&decls[i]))
	}
	return res, total, nil
}

func (s *declarationService) UpdateDeclaration(ctx context.Context, actor Actor, id uuid.UUID, req UpdateDeclarationRequest) (*DeclarationResponse, error) {
	decl, err := s.decls.GetByID(ctx, id)
	if err != nil || decl.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}

	now := time.Now()
	if req.Status != "" && req.Status != decl.Status {
		decl.Status = req.Status
		switch req.Status {
		case model.DeclarationStatusReceived:
			decl.ReceivedAt = &now
		case model.DeclarationStatusSubmitted:
			decl.SubmittedAt = &now
		}
	}
	if req.Notes != "" {
		decl.Notes = req.Notes
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.decls.Update(txCtx, decl); err != nil {
			return fmt.Errorf("failed to update declaration: %w", err)
		}
		return s.audit.Log(txCtx, &model.AuditLog{
			Tenant:   actor.Tenant,
			UserID:   &actor.UserID,
			Action:   model.ActionUpdateDeclaration,
			EntityID: decl.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	return mapDeclarationToResponse(decl), nil
}

func (s *declarationService) SendReminders(ctx context.Context, actor Actor, window time.Duration) (int, error) {
	due, err := s.decls.ListDueForReminder(ctx, actor.Tenant, time.Now().Add(window))
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		decl := &due[i]
		if decl.Client == nil || decl.Client.Email == "" {
			continue
		}

		_, err := s.mail.Send(ctx, mailer.Message{
			To:      []string{decl.Client.Email},
			Subject: fmt.Sprintf("Reminder: capital declaration for %d due %s", decl.TaxYear, decl.DueDate.Format("2006-01-02")),
			BodyHTML: fmt.Sprintf("<p>Dear %s,</p><p>Your capital declaration for tax year %d is due on %s. Please send us the required documents.</p>",
				decl.Client.Name, decl.TaxYear, decl.DueDate.Format("2006-01-02")),
		})
		if err != nil {
			logrus.WithError(err).WithField("declaration", decl.ID).Warn("reminder email failed")
			continue
		}

		now := time.Now()
		decl.LastReminderAt = &now
		if err := s.decls.Update(ctx, decl); err != nil {
			logrus.WithError(err).WithField("declaration", decl.ID).Warn("failed to record reminder")
			continue
		}
		sent++
	}

	return sent, nil
}
