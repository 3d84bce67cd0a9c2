package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/repository"

	"github.com/google/uuid"
)

type CreateClientRequest struct {
	Name    string `json:"name" binding:"required"`
	TaxID   string `json:"tax_id" binding:"required,min=8,max=10"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type UpdateClientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Active  *bool  `json:"active"`
}

type ClientResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type ClientService interface {
	CreateClient(ctx context.Context, actor Actor, req CreateClientRequest) (*ClientResponse, error)
	GetClient(ctx context.Context, actor Actor, id uuid.UUID) (*ClientResponse, error)
	ListClients(ctx context.Context, actor Actor, search string, page, limit int) ([]ClientResponse, int64, error)
	UpdateClient(ctx context.Context, actor Actor, id uuid.UUID, req UpdateClientRequest) (*ClientResponse, error)
	DeleteClient(ctx context.Context, actor Actor, id uuid.UUID) error
}

type clientService struct {
	repo  repository.ClientRepository
	audit repository.AuditRepository
	txm   repository.TransactionManager
}

func NewClientService(repo repository.ClientRepository, audit repository.AuditRepository, txm repository.TransactionManager) ClientService {
	return &clientService{repo: repo, audit: audit, txm: txm}
}

func mapClientToResponse(c *model.Client) *ClientResponse {
	return &ClientResponse{
		ID:        c.ID,
		Name:      c.Name,
		TaxID:     c.TaxID,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		Active:    c.Active,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *clientService) auditEntry(actor Actor, action, entityID, entityName string, details map[string]interface{}) *model.AuditLog {
	payload, _ := json.Marshal(details)
	return &model.AuditLog{
		Tenant:     actor.Tenant,
		UserID:     &actor.UserID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
}

func (s *clientService) CreateClient(ctx context.Context, actor Actor, req CreateClientRequest) (*ClientResponse, error) {
	client := &model.Client{
		Tenant:  actor.Tenant,
		Name:    req.Name,
		TaxID:   req.TaxID,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		Active:  true,
	}

	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		return s.audit.Log(txCtx, s.auditEntry(actor, model.ActionCreateClient, client.ID.String(), client.Name, map[string]interface{}{
			"tax_id": req.TaxID,
		}))
	})
	if err != nil {
		return nil, err
	}

	return mapClientToResponse(client), nil
}

func (s *clientService) GetClient(ctx context.Context, actor Actor, id uuid.UUID) (*ClientResponse, error) {
	client, err := s.repo.GetByID(ctx, id)
	if err != nil || client.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}
	return mapClientToResponse(client), nil
}

func (s *clientService) ListClients(ctx context.Context, actor Actor, search string, page, limit int) ([]ClientResponse, int64, error) {
	clients, total, err := s.repo.List(ctx, actor.Tenant, search, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]ClientResponse, 0, len(clients))
	for i := range clients {
		res = append(res, *mapClientToResponse(&clients[i]))
	}
	return res, total, nil
}

func (s *clientService) UpdateClient(ctx context.Context, actor Actor, id uuid.UUID, req UpdateClientRequest) (*ClientResponse, error) {
	client, err := s.repo.GetByID(ctx, id)
	if err != nil || client.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}

	if req.Name != "" {
		client.Name = req.Name
	}
	if req.Email != "" {
		client.Email = req.Email
	}
	if req.Phone != "" {
		client.Phone = req.Phone
	}
	if req.Address != "" {
		client.Address = req.Address
	}
	if req.Active != nil {
		client.Active = *req.Active
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, client); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
		return s.audit.Log(txCtx, s.auditEntry(actor, model.ActionUpdateClient, client.ID.String(), client.Name, nil))
	})
	if err != nil {
		return nil, err
	}

	return mapClientToResponse(client), nil
}

func (s *clientService) DeleteClient(ctx context.Context, actor Actor, id uuid.UUID) error {
	client, err := s.repo.GetByID(ctx, id)
	if err != nil || client.Tenant != actor.Tenant {
		return ErrNotFound
	}

	return s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
		return s.audit.Log(txCtx, s.auditEntry(actor, model.ActionDeleteClient, id.String(), client.Name, nil))
	})
}
