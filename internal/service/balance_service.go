package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/repository"
	"github.com/nivtax/balanca-backend/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Publisher pushes a payload to every subscriber of a case chat room. The
// websocket hub satisfies it; tests use a recording fake.
type Publisher interface {
	Publish(tenant, caseID string, payload []byte)
}

// --- DTOs ---

type OpenYearRequest struct {
	ClientID string `json:"client_id" binding:"required,uuid"`
	TaxYear  int    `json:"tax_year" binding:"required,min=2000,max=2100"`
	Notes    string `json:"notes"`
}

type ChangeStatusRequest struct {
	// Empty target means "advance one step on the normal path".
	Target string `json:"target" binding:"omitempty,balancestatus"`
	Note   string `json:"note" binding:"max=1000"`
}

type AssignAuditorRequest struct {
	AuditorID string `json:"auditor_id" binding:"required,uuid"`
}

type UpdateFinancialsRequest struct {
	AdvancesAmount *decimal.Decimal `json:"advances_amount"`
	TaxAmount      *decimal.Decimal `json:"tax_amount"`
	Turnover       *decimal.Decimal `json:"turnover"`
	Notes          *string          `json:"notes"`
}

// Actor identifies who is performing a mutation, as resolved from the JWT.
type Actor struct {
	UserID uuid.UUID
	Tenant string
	Role   permission.Role
}

type BalanceCaseResponse struct {
	ID                  uuid.UUID        `json:"id"`
	Tenant              string           `json:"tenant"`
	ClientID            uuid.UUID        `json:"client_id"`
	ClientName          string           `json:"client_name,omitempty"`
	TaxYear             int              `json:"tax_year"`
	Status              string           `json:"status"`
	StatusLabel         string           `json:"status_label"`
	StatusColor         string           `json:"status_color"`
	MaterialsReceivedAt *time.Time       `json:"materials_received_at"`
	WorkStartedAt       *time.Time       `json:"work_started_at"`
	WorkCompletedAt     *time.Time       `json:"work_completed_at"`
	OfficeApprovedAt    *time.Time       `json:"office_approved_at"`
	ReportTransmittedAt *time.Time       `json:"report_transmitted_at"`
	AdvancesUpdatedAt   *time.Time       `json:"advances_updated_at"`
	AuditorID           *uuid.UUID       `json:"auditor_id"`
	AuditorName         string           `json:"auditor_name,omitempty"`
	AuditorConfirmed    bool             `json:"auditor_confirmed"`
	AuditorConfirmedAt  *time.Time       `json:"auditor_confirmed_at"`
	AdvancesAmount      decimal.Decimal  `json:"advances_amount"`
	TaxAmount           decimal.Decimal  `json:"tax_amount"`
	Turnover            decimal.Decimal  `json:"turnover"`
	AdvanceRate         decimal.Decimal  `json:"advance_rate"`
	AdvanceRateAlert    bool             `json:"advance_rate_alert"`
	Notes               string           `json:"notes"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

type StatusHistoryResponse struct {
	ID         uuid.UUID `json:"id"`
	FromStatus *string   `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorName  string    `json:"actor_name,omitempty"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// --- Interface ---

type BalanceService interface {
	OpenYear(ctx context.Context, actor Actor, req OpenYearRequest) (*BalanceCaseResponse, error)
	GetCase(ctx context.Context, actor Actor, id uuid.UUID) (*BalanceCaseResponse, error)
	ListCases(ctx context.Context, filter repository.CaseFilter) ([]BalanceCaseResponse, int64, error)
	ListByClient(ctx context.Context, actor Actor, clientID uuid.UUID) ([]BalanceCaseResponse, error)
	ChangeStatus(ctx context.Context, actor Actor, caseID uuid.UUID, req ChangeStatusRequest) (*BalanceCaseResponse, error)
	AssignAuditor(ctx context.Context, actor Actor, caseID uuid.UUID, req AssignAuditorRequest) (*BalanceCaseResponse, error)
	ConfirmAssignment(ctx context.Context, actor Actor, caseID uuid.UUID) (*BalanceCaseResponse, error)
	UpdateFinancials(ctx context.Context, actor Actor, caseID uuid.UUID, req UpdateFinancialsRequest) (*BalanceCaseResponse, error)
	History(ctx context.Context, caseID uuid.UUID) ([]StatusHistoryResponse, error)
	ExportCases(ctx context.Context, filter repository.CaseFilter) (*excelize.File, error)
}

type balanceService struct {
	cases    repository.BalanceCaseRepository
	history  repository.StatusHistoryRepository
	chat     repository.ChatRepository
	users    repository.UserRepository
	audit    repository.AuditRepository
	txm      repository.TransactionManager
	hub      Publisher
}

func NewBalanceService(
	cases repository.BalanceCaseRepository,
	history repository.StatusHistoryRepository,
	chat repository.ChatRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
	hub Publisher,
) BalanceService {
	return &balanceService{
		cases:   cases,
		history: history,
		chat:    chat,
		users:   users,
		audit:   audit,
		txm:     txm,
		hub:     hub,
	}
}

// advanceRateAlertThreshold flags cases whose advances run ahead of the tax
// actually due.
var advanceRateAlertThreshold = decimal.NewFromFloat(1.1)

func mapCaseToResponse(bc *model.BalanceCase) *BalanceCaseResponse {
	meta, _ := workflow.MetaOf(workflow.Status(bc.Status))
	resp := &BalanceCaseResponse{
		ID:                  bc.ID,
		Tenant:              bc.Tenant,
		ClientID:            bc.ClientID,
		TaxYear:             bc.TaxYear,
		Status:              bc.Status,
		StatusLabel:         meta.Label,
		StatusColor:         meta.Color,
		MaterialsReceivedAt: bc.MaterialsReceivedAt,
		WorkStartedAt:       bc.WorkStartedAt,
		WorkCompletedAt:     bc.WorkCompletedAt,
		OfficeApprovedAt:    bc.OfficeApprovedAt,
		ReportTransmittedAt: bc.ReportTransmittedAt,
		AdvancesUpdatedAt:   bc.AdvancesUpdatedAt,
		AuditorID:           bc.AuditorID,
		AuditorConfirmed:    bc.AuditorConfirmed,
		AuditorConfirmedAt:  bc.AuditorConfirmedAt,
		AdvancesAmount:      bc.AdvancesAmount,
		TaxAmount:           bc.TaxAmount,
		Turnover:            bc.Turnover,
		AdvanceRate:         bc.AdvanceRate,
		AdvanceRateAlert:    bc.AdvanceRateAlert,
		Notes:               bc.Notes,
		CreatedAt:           bc.CreatedAt,
		UpdatedAt:           bc.UpdatedAt,
	}
	if bc.Client != nil {
		resp.ClientName = bc.Client.Name
	}
	if bc.Auditor != nil {
		resp.AuditorName = bc.Auditor.DisplayName
	}
	return resp
}

func (s *balanceService) OpenYear(ctx context.Context, actor Actor, req OpenYearRequest) (*BalanceCaseResponse, error) {
	if !permission.Has(actor.Role, permission.ActionOpenYear) {
		return nil, ErrForbidden
	}

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client_id: %w", err)
	}

	if _, err := s.cases.GetByClientYear(ctx, actor.Tenant, clientID, req.TaxYear); err == nil {
		return nil, ErrAlreadyExists
	}

	bc := &model.BalanceCase{
		Tenant:   actor.Tenant,
		ClientID: clientID,
		TaxYear:  req.TaxYear,
		Status:   string(workflow.StatusWaitingForMaterials),
		Notes:    req.Notes,
		Active:   true,
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.cases.Create(txCtx, bc); err != nil {
			return fmt.Errorf("failed to open year: %w", err)
		}

		// Creation row: from_status is null.
		initial := string(workflow.StatusWaitingForMaterials)
		entry := &model.StatusHistory{
			CaseID:   bc.ID,
			ToStatus: initial,
			ActorID:  &actor.UserID,
		}
		if err := s.history.Append(txCtx, entry); err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}

		return s.writeAudit(txCtx, actor, model.ActionOpenYear, bc.ID.String(), fmt.Sprintf("%d", req.TaxYear), map[string]interface{}{
			"client_id": req.ClientID,
			"tax_year":  req.TaxYear,
		})
	})
	if err != nil {
		return nil, err
	}

	return mapCaseToResponse(bc), nil
}

func (s *balanceService) GetCase(ctx context.Context, actor Actor, id uuid.UUID) (*BalanceCaseResponse, error) {
	bc, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if bc.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}
	return mapCaseToResponse(bc), nil
}

func (s *balanceService) ListCases(ctx context.Context, filter repository.CaseFilter) ([]BalanceCaseResponse, int64, error) {
	cases, total, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	res := make([]BalanceCaseResponse, 0, len(cases))
	for i := range cases {
		res = append(res, *mapCaseToResponse(&cases[i]))
	}
	return res, total, nil
}

func (s *balanceService) ListByClient(ctx context.Context, actor Actor, clientID uuid.UUID) ([]BalanceCaseResponse, error) {
	cases, err := s.cases.ListByClient(ctx, actor.Tenant, clientID)
	if err != nil {
		return nil, err
	}

	res := make([]BalanceCaseResponse, 0, len(cases))
	for i := range cases {
		res = append(res, *mapCaseToResponse(&cases[i]))
	}
	return res, nil
}

// ChangeStatus performs one guarded workflow transition. The status update,
// milestone stamp, history entry, audit row and system chat message commit in
// a single transaction; the room broadcast goes out only after the commit.
func (s *balanceService) ChangeStatus(ctx context.Context, actor Actor, caseID uuid.UUID, req ChangeStatusRequest) (*BalanceCaseResponse, error) {
	if !permission.Has(actor.Role, permission.ActionChangeStatus) {
		return nil, ErrForbidden
	}

	bc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, ErrNotFound
	}
	if bc.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}

	from := workflow.Status(bc.Status)
	var target workflow.Status
	if req.Target != "" {
		target = workflow.Status(req.Target)
	} else {
		next, ok := workflow.Next(from)
		if !ok {
			return nil, ErrInvalidTransition
		}
		target = next
	}

	isAdmin := actor.Role == permission.RoleAdmin
	if !workflow.IsValidTransition(from, target, isAdmin) {
		return nil, ErrInvalidTransition
	}
	// Backward moves are an admin correction and additionally gated.
	if isBackward(from, target) && !permission.Has(actor.Role, permission.ActionRevertStatus) {
		return nil, ErrForbidden
	}

	now := time.Now()
	fields := map[string]interface{}{"status": string(target)}
	if col := workflow.MilestoneColumn(target); col != "" {
		fields[col] = now
	}

	var sysMsg *model.ChatMessage
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.cases.UpdateFields(txCtx, caseID, fields); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}

		fromStr := string(from)
		entry := &model.StatusHistory{
			CaseID:     caseID,
			FromStatus: &fromStr,
			ToStatus:   string(target),
			ActorID:    &actor.UserID,
			Note:       req.Note,
		}
		if err := s.history.Append(txCtx, entry); err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}

		meta, _ := workflow.MetaOf(target)
		sysMsg = &model.ChatMessage{
			Tenant:      actor.Tenant,
			CaseID:      caseID,
			AuthorID:    &actor.UserID,
			Content:     fmt.Sprintf("Status changed to %q", meta.Label),
			MessageType: model.MessageTypeSystem,
		}
		if err := s.chat.Insert(txCtx, sysMsg); err != nil {
			return fmt.Errorf("failed to insert system message: %w", err)
		}

		return s.writeAudit(txCtx, actor, model.ActionChangeStatus, caseID.String(), string(target), map[string]interface{}{
			"from": string(from),
			"to":   string(target),
			"note": req.Note,
		})
	})
	if err != nil {
		return nil, err
	}

	s.broadcastMessage(actor.Tenant, caseID, sysMsg)

	updated, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"case": caseID,
		"from": from,
		"to":   target,
		"by":   actor.UserID,
	}).Info("case status changed")

	return mapCaseToResponse(updated), nil
}

func isBackward(from, to workflow.Status) bool {
	order := workflow.All()
	fi, ti := -1, -1
	for i, s := range order {
		if s == from {
			fi = i
		}
		if s == to {
			ti = i
		}
	}
	return fi >= 0 && ti >= 0 && ti < fi
}

func (s *balanceService) AssignAuditor(ctx context.Context, actor Actor, caseID uuid.UUID, req AssignAuditorRequest) (*BalanceCaseResponse, error) {
	if !permission.Has(actor.Role, permission.ActionAssignAuditor) {
		return nil, ErrForbidden
	}

	bc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, ErrNotFound
	}
	if bc.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}

	auditorID, err := uuid.Parse(req.AuditorID)
	if err != nil {
		return nil, fmt.Errorf("invalid auditor_id: %w", err)
	}
	auditor, err := s.users.GetByID(ctx, req.AuditorID)
	if err != nil {
		return nil, fmt.Errorf("auditor not found")
	}

	// Re-assignment resets confirmation; chat access for the previous
	// bookkeeper lapses with the assignment.
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.cases.UpdateFields(txCtx, caseID, map[string]interface{}{
			"auditor_id":           auditorID,
			"auditor_confirmed":    false,
			"auditor_confirmed_at": nil,
		}); err != nil {
			return fmt.Errorf("failed to assign auditor: %w", err)
		}

		return s.writeAudit(txCtx, actor, model.ActionAssignAuditor, caseID.String(), auditor.DisplayName, map[string]interface{}{
			"auditor_id": req.AuditorID,
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return mapCaseToResponse(updated), nil
}

func (s *balanceService) ConfirmAssignment(ctx context.Context, actor Actor, caseID uuid.UUID) (*BalanceCaseResponse, error) {
	if !permission.Has(actor.Role, permission.ActionConfirmAssignment) {
		return nil, ErrForbidden
	}

	bc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, ErrNotFound
	}
	if bc.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}
	if bc.AuditorID == nil || *bc.AuditorID != actor.UserID {
		return nil, ErrForbidden
	}

	now := time.Now()
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.cases.UpdateFields(txCtx, caseID, map[string]interface{}{
			"auditor_confirmed":    true,
			"auditor_confirmed_at": now,
		}); err != nil {
			return fmt.Errorf("failed to confirm assignment: %w", err)
		}
		return s.writeAudit(txCtx, actor, model.ActionConfirmAssignment, caseID.String(), "", nil)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return mapCaseToResponse(updated), nil
}

func (s *balanceService) UpdateFinancials(ctx context.Context, actor Actor, caseID uuid.UUID, req UpdateFinancialsRequest) (*BalanceCaseResponse, error) {
	bc, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, ErrNotFound
	}
	if bc.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}

	if req.AdvancesAmount != nil {
		bc.AdvancesAmount = *req.AdvancesAmount
	}
	if req.TaxAmount != nil {
		bc.TaxAmount = *req.TaxAmount
	}
	if req.Turnover != nil {
		bc.Turnover = *req.Turnover
	}
	if req.Notes != nil {
		bc.Notes = *req.Notes
	}

	// Advance rate = advances paid / tax due; alert when advances overshoot.
	if bc.TaxAmount.IsPositive() {
		bc.AdvanceRate = bc.AdvancesAmount.Div(bc.TaxAmount).Round(4)
		bc.AdvanceRateAlert = bc.AdvanceRate.GreaterThan(advanceRateAlertThreshold)
	} else {
		bc.AdvanceRate = decimal.Zero
		bc.AdvanceRateAlert = false
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.cases.Update(txCtx, bc); err != nil {
			return fmt.Errorf("failed to update financials: %w", err)
		}
		return s.writeAudit(txCtx, actor, model.ActionUpdateFinancials, caseID.String(), "", map[string]interface{}{
			"advances_amount": bc.AdvancesAmount,
			"tax_amount":      bc.TaxAmount,
			"turnover":        bc.Turnover,
		})
	})
	if err != nil {
		return nil, err
	}

	return mapCaseToResponse(bc), nil
}

func (s *balanceService) History(ctx context.Context, caseID uuid.UUID) ([]StatusHistoryResponse, error) {
	entries, err := s.history.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	res := make([]StatusHistoryResponse, 0, len(entries))
	for _, e := range entries {
		item := StatusHistoryResponse{
			ID:         e.ID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Note:       e.Note,
			CreatedAt:  e.CreatedAt,
		}
		if e.Actor != nil {
			item.ActorName = e.Actor.DisplayName
		}
		res = append(res, item)
	}
	return res, nil
}

// ExportCases builds an .xlsx workbook of the filtered case list.
func (s *balanceService) ExportCases(ctx context.Context, filter repository.CaseFilter) (*excelize.File, error) {
	filter.Page = 1
	filter.Limit = 10000
	cases, _, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Cases"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Client", "Tax year", "Status", "Auditor", "Advances", "Tax", "Turnover", "Advance rate", "Updated"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for row, bc := range cases {
		meta, _ := workflow.MetaOf(workflow.Status(bc.Status))
		clientName := ""
		if bc.Client != nil {
			clientName = bc.Client.Name
		}
		auditorName := ""
		if bc.Auditor != nil {
			auditorName = bc.Auditor.DisplayName
		}
		values := []interface{}{
			clientName,
			bc.TaxYear,
			meta.Label,
			auditorName,
			bc.AdvancesAmount.String(),
			bc.TaxAmount.String(),
			bc.Turnover.String(),
			bc.AdvanceRate.String(),
			bc.UpdatedAt.Format("2006-01-02"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	return f, nil
}

func (s *balanceService) writeAudit(ctx context.Context, actor Actor, action, entityID, entityName string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		Tenant:     actor.Tenant,
		UserID:     &actor.UserID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *balanceService) broadcastMessage(tenant string, caseID uuid.UUID, msg *model.ChatMessage) {
	if s.hub == nil || msg == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Warn("failed to marshal chat broadcast")
		return
	}
	s.hub.Publish(tenant, caseID.String(), payload)
}
