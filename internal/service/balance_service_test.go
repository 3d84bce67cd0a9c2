package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/repository"
	"github.com/nivtax/balanca-backend/internal/workflow"
)

// --- in-memory repository fakes ---

type fakeCaseRepo struct {
	cases map[uuid.UUID]*model.BalanceCase
}

func newFakeCaseRepo(cases ...*model.BalanceCase) *fakeCaseRepo {
	r := &fakeCaseRepo{cases: map[uuid.UUID]*model.BalanceCase{}}
	for _, c := range cases {
		r.cases[c.ID] = c
	}
	return r
}

func (r *fakeCaseRepo) Create(_ context.Context, bc *model.BalanceCase) error {
	if bc.ID == uuid.Nil {
		bc.ID = uuid.New()
	}
	r.cases[bc.ID] = bc
	return nil
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id uuid.UUID) (*model.BalanceCase, error) {
	bc, ok := r.cases[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *bc
	return &cp, nil
}

func (r *fakeCaseRepo) GetByClientYear(_ context.Context, tenant string, clientID uuid.UUID, year int) (*model.BalanceCase, error) {
	for _, bc := range r.cases {
		if bc.Tenant == tenant && bc.ClientID == clientID && bc.TaxYear == year {
			cp := *bc
			return &cp, nil
		}
	}
	return nil, errors.New("record not found")
}

func (r *fakeCaseRepo) ListByClient(_ context.Context, tenant string, clientID uuid.UUID) ([]model.BalanceCase, error) {
	var out []model.BalanceCase
	for _, bc := range r.cases {
		if bc.Tenant == tenant && bc.ClientID == clientID {
			out = append(out, *bc)
		}
	}
	return out, nil
}

func (r *fakeCaseRepo) List(_ context.Context, filter repository.CaseFilter) ([]model.BalanceCase, int64, error) {
	var out []model.BalanceCase
	for _, bc := range r.cases {
		if bc.Tenant == filter.Tenant {
			out = append(out, *bc)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeCaseRepo) Update(_ context.Context, bc *model.BalanceCase) error {
	r.cases[bc.ID] = bc
	return nil
}

func (r *fakeCaseRepo) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	bc, ok := r.cases[id]
	if !ok {
		return errors.New("record not found")
	}
	for col, val := range fields {
		switch col {
		case "status":
			bc.Status = val.(string)
		case "materials_received_at":
			t := val.(time.Time)
			bc.MaterialsReceivedAt = &t
		case "work_started_at":
			t := val.(time.Time)
			bc.WorkStartedAt = &t
		case "work_completed_at":
			t := val.(time.Time)
			bc.WorkCompletedAt = &t
		case "office_approved_at":
			t := val.(time.Time)
			bc.OfficeApprovedAt = &t
		case "report_transmitted_at":
			t := val.(time.Time)
			bc.ReportTransmittedAt = &t
		case "advances_updated_at":
			t := val.(time.Time)
			bc.AdvancesUpdatedAt = &t
		case "auditor_id":
			if val == nil {
				bc.AuditorID = nil
			} else {
				id := val.(uuid.UUID)
				bc.AuditorID = &id
			}
		case "auditor_confirmed":
			bc.AuditorConfirmed = val.(bool)
		case "auditor_confirmed_at":
			if val == nil {
				bc.AuditorConfirmedAt = nil
			} else {
				t := val.(time.Time)
				bc.AuditorConfirmedAt = &t
			}
		}
	}
	return nil
}

type fakeHistoryRepo struct {
	entries []model.StatusHistory
}

func (r *fakeHistoryRepo) Append(_ context.Context, entry *model.StatusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]model.StatusHistory, error) {
	var out []model.StatusHistory
	for _, e := range r.entries {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeChatRepo struct {
	messages []model.ChatMessage
}

func (r *fakeChatRepo) Insert(_ context.Context, msg *model.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeChatRepo) GetByID(_ context.Context, id uuid.UUID) (*model.ChatMessage, error) {
	for i := range r.messages {
		if r.messages[i].ID == id {
			cp := r.messages[i]
			return &cp, nil
		}
	}
	return nil, errors.New("record not found")
}

func (r *fakeChatRepo) ListPage(_ context.Context, caseID uuid.UUID, limit int, before *time.Time) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	for _, m := range r.messages {
		if m.CaseID == caseID && !m.Deleted {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) SoftDelete(_ context.Context, id uuid.UUID, actorID uuid.UUID) error {
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].Deleted = true
			return nil
		}
	}
	return errors.New("record not found")
}

func (r *fakeChatRepo) CountSince(_ context.Context, caseID uuid.UUID, since time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeChatRepo) UpsertReadState(context.Context, uuid.UUID, uuid.UUID, time.Time) error {
	return nil
}

func (r *fakeChatRepo) GetReadState(context.Context, uuid.UUID, uuid.UUID) (*model.ChatReadState, error) {
	return nil, errors.New("record not found")
}

type fakeUserRepo struct {
	users map[string]*model.User
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error { return nil }
func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return u, nil
}
func (r *fakeUserRepo) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, errors.New("record not found")
}
func (r *fakeUserRepo) List(context.Context, string, int, int) ([]model.User, int64, error) {
	return nil, 0, nil
}
func (r *fakeUserRepo) ListByRole(context.Context, string, string) ([]model.User, error) {
	return nil, nil
}
func (r *fakeUserRepo) Update(context.Context, *model.User) error { return nil }
func (r *fakeUserRepo) Delete(context.Context, string) error      { return nil }

type fakeAuditRepo struct {
	logs []model.AuditLog
}

func (r *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *fakeAuditRepo) List(context.Context, string, int, int) ([]model.AuditLog, int64, error) {
	return nil, 0, nil
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type recordingPublisher struct {
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_, _ string, payload []byte) {
	p.payloads = append(p.payloads, payload)
}

// --- fixtures ---

type balanceFixture struct {
	svc     BalanceService
	cases   *fakeCaseRepo
	history *fakeHistoryRepo
	chat    *fakeChatRepo
	users   *fakeUserRepo
	audit   *fakeAuditRepo
	hub     *recordingPublisher
}

func newBalanceFixture(cases ...*model.BalanceCase) *balanceFixture {
	f := &balanceFixture{
		cases:   newFakeCaseRepo(cases...),
		history: &fakeHistoryRepo{},
		chat:    &fakeChatRepo{},
		users:   &fakeUserRepo{users: map[string]*model.User{}},
		audit:   &fakeAuditRepo{},
		hub:     &recordingPublisher{},
	}
	f.svc = NewBalanceService(f.cases, f.history, f.chat, f.users, f.audit, fakeTxManager{}, f.hub)
	return f
}

func caseInStatus(tenant string, status workflow.Status) *model.BalanceCase {
	return &model.BalanceCase{
		ID:       uuid.New(),
		Tenant:   tenant,
		ClientID: uuid.New(),
		TaxYear:  2025,
		Status:   string(status),
		Active:   true,
	}
}

func actorWithRole(role permission.Role) Actor {
	return Actor{UserID: uuid.New(), Tenant: "firm-a", Role: role}
}

// --- tests ---

func TestChangeStatusAdvancesOneStep(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusWaitingForMaterials)
	f := newBalanceFixture(bc)
	actor := actorWithRole(permission.RoleBookkeeper)

	resp, err := f.svc.ChangeStatus(context.Background(), actor, bc.ID, ChangeStatusRequest{Note: "docs arrived"})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if resp.Status != string(workflow.StatusMaterialsReceived) {
		t.Fatalf("expected materials_received, got %s", resp.Status)
	}
	if resp.MaterialsReceivedAt == nil {
		t.Error("milestone timestamp not stamped on entry")
	}

	if len(f.history.entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(f.history.entries))
	}
	entry := f.history.entries[0]
	if entry.FromStatus == nil || *entry.FromStatus != string(workflow.StatusWaitingForMaterials) {
		t.Errorf("history from_status wrong: %v", entry.FromStatus)
	}
	if entry.ToStatus != string(workflow.StatusMaterialsReceived) || entry.Note != "docs arrived" {
		t.Errorf("history entry wrong: %+v", entry)
	}

	if len(f.chat.messages) != 1 || f.chat.messages[0].MessageType != model.MessageTypeSystem {
		t.Fatalf("expected one system chat message, got %+v", f.chat.messages)
	}
	if len(f.audit.logs) != 1 || f.audit.logs[0].Action != model.ActionChangeStatus {
		t.Fatalf("expected one audit entry, got %+v", f.audit.logs)
	}
	if len(f.hub.payloads) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(f.hub.payloads))
	}
}

func TestChangeStatusRejectsSkippingForNonAdmin(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusMaterialsReceived)
	f := newBalanceFixture(bc)
	actor := actorWithRole(permission.RoleBookkeeper)

	_, err := f.svc.ChangeStatus(context.Background(), actor, bc.ID, ChangeStatusRequest{
		Target: string(workflow.StatusReportTransmitted),
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	stored, _ := f.cases.GetByID(context.Background(), bc.ID)
	if stored.Status != string(workflow.StatusMaterialsReceived) {
		t.Error("rejected transition must not change the case")
	}
	if len(f.history.entries) != 0 || len(f.chat.messages) != 0 {
		t.Error("rejected transition must not write history or chat")
	}
}

func TestChangeStatusOfficeApprovedIsAdminOnly(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusWorkCompleted)
	f := newBalanceFixture(bc)

	_, err := f.svc.ChangeStatus(context.Background(), actorWithRole(permission.RoleAccountant), bc.ID, ChangeStatusRequest{
		Target: string(workflow.StatusOfficeApproved),
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accountant reaching office_approved: expected ErrInvalidTransition, got %v", err)
	}

	resp, err := f.svc.ChangeStatus(context.Background(), actorWithRole(permission.RoleAdmin), bc.ID, ChangeStatusRequest{
		Target: string(workflow.StatusOfficeApproved),
	})
	if err != nil {
		t.Fatalf("admin reaching office_approved: %v", err)
	}
	if resp.OfficeApprovedAt == nil {
		t.Error("office_approved_at not stamped")
	}
}

func TestChangeStatusNormalPathSkipsOfficeApproved(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusWorkCompleted)
	f := newBalanceFixture(bc)

	resp, err := f.svc.ChangeStatus(context.Background(), actorWithRole(permission.RoleAccountant), bc.ID, ChangeStatusRequest{})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if resp.Status != string(workflow.StatusReportTransmitted) {
		t.Fatalf("default advance from work_completed should land on report_transmitted, got %s", resp.Status)
	}
}

func TestChangeStatusAdminRevert(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusInProgress)
	f := newBalanceFixture(bc)

	resp, err := f.svc.ChangeStatus(context.Background(), actorWithRole(permission.RoleAdmin), bc.ID, ChangeStatusRequest{
		Target: string(workflow.StatusMaterialsReceived),
		Note:   "rework needed",
	})
	if err != nil {
		t.Fatalf("admin revert: %v", err)
	}
	if resp.Status != string(workflow.StatusMaterialsReceived) {
		t.Fatalf("revert not applied, got %s", resp.Status)
	}
}

func TestChangeStatusAccountantCannotRevert(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusInProgress)
	f := newBalanceFixture(bc)

	_, err := f.svc.ChangeStatus(context.Background(), actorWithRole(permission.RoleAccountant), bc.ID, ChangeStatusRequest{
		Target: string(workflow.StatusMaterialsReceived),
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestChangeStatusForwardKeepsEarlierMilestones(t *testing.T) {
	received := time.Now().Add(-48 * time.Hour)
	bc := caseInStatus("firm-a", workflow.StatusMaterialsReceived)
	bc.MaterialsReceivedAt = &received
	f := newBalanceFixture(bc)

	if _, err := f.svc.ChangeStatus(context.Background(), actorWithRole(permission.RoleAccountant), bc.ID, ChangeStatusRequest{}); err != nil {
		t.Fatalf("change status: %v", err)
	}

	stored, _ := f.cases.GetByID(context.Background(), bc.ID)
	if stored.MaterialsReceivedAt == nil || !stored.MaterialsReceivedAt.Equal(received) {
		t.Error("forward transition must not clear or restamp earlier milestones")
	}
}

func TestChangeStatusIsTenantScoped(t *testing.T) {
	bc := caseInStatus("firm-b", workflow.StatusWaitingForMaterials)
	f := newBalanceFixture(bc)

	_, err := f.svc.ChangeStatus(context.Background(), actorWithRole(permission.RoleAdmin), bc.ID, ChangeStatusRequest{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant access should read as not found, got %v", err)
	}
}

func TestAssignAuditorResetsConfirmation(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusMaterialsReceived)
	confirmedAt := time.Now().Add(-time.Hour)
	firstAuditor := uuid.New()
	bc.AuditorID = &firstAuditor
	bc.AuditorConfirmed = true
	bc.AuditorConfirmedAt = &confirmedAt
	f := newBalanceFixture(bc)

	next := uuid.New()
	f.users.users[next.String()] = &model.User{ID: next, DisplayName: "Rina Bar", Role: string(permission.RoleBookkeeper)}
	resp, err := f.svc.AssignAuditor(context.Background(), actorWithRole(permission.RoleAdmin), bc.ID, AssignAuditorRequest{
		AuditorID: next.String(),
	})
	if err != nil {
		t.Fatalf("assign auditor: %v", err)
	}
	if resp.AuditorID == nil || *resp.AuditorID != next {
		t.Fatalf("auditor not assigned: %+v", resp.AuditorID)
	}
	if resp.AuditorConfirmed || resp.AuditorConfirmedAt != nil {
		t.Error("reassignment must reset the previous confirmation")
	}
}

func TestAssignAuditorForbiddenForAccountant(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusMaterialsReceived)
	f := newBalanceFixture(bc)

	_, err := f.svc.AssignAuditor(context.Background(), actorWithRole(permission.RoleAccountant), bc.ID, AssignAuditorRequest{
		AuditorID: uuid.New().String(),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestConfirmAssignmentRequiresAssignedAuditor(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusAssignedToAuditor)
	assigned := uuid.New()
	bc.AuditorID = &assigned
	f := newBalanceFixture(bc)

	stranger := actorWithRole(permission.RoleBookkeeper)
	if _, err := f.svc.ConfirmAssignment(context.Background(), stranger, bc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unassigned bookkeeper confirming: expected ErrForbidden, got %v", err)
	}

	auditor := Actor{UserID: assigned, Tenant: "firm-a", Role: permission.RoleBookkeeper}
	resp, err := f.svc.ConfirmAssignment(context.Background(), auditor, bc.ID)
	if err != nil {
		t.Fatalf("confirm assignment: %v", err)
	}
	if !resp.AuditorConfirmed || resp.AuditorConfirmedAt == nil {
		t.Error("confirmation not recorded")
	}
}

func TestUpdateFinancialsComputesAdvanceRateAlert(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusInProgress)
	f := newBalanceFixture(bc)

	advances := decimal.NewFromInt(120)
	tax := decimal.NewFromInt(100)
	resp, err := f.svc.UpdateFinancials(context.Background(), actorWithRole(permission.RoleAccountant), bc.ID, UpdateFinancialsRequest{
		AdvancesAmount: &advances,
		TaxAmount:      &tax,
	})
	if err != nil {
		t.Fatalf("update financials: %v", err)
	}
	if !resp.AdvanceRate.Equal(decimal.NewFromFloat(1.2)) {
		t.Errorf("advance rate = %s, want 1.2", resp.AdvanceRate)
	}
	if !resp.AdvanceRateAlert {
		t.Error("advances over the threshold should raise the alert")
	}

	lower := decimal.NewFromInt(50)
	resp, err = f.svc.UpdateFinancials(context.Background(), actorWithRole(permission.RoleAccountant), bc.ID, UpdateFinancialsRequest{
		AdvancesAmount: &lower,
	})
	if err != nil {
		t.Fatalf("update financials: %v", err)
	}
	if resp.AdvanceRateAlert {
		t.Error("alert should clear once advances drop back under the threshold")
	}
}

func TestOpenYearRejectsDuplicate(t *testing.T) {
	bc := caseInStatus("firm-a", workflow.StatusWaitingForMaterials)
	f := newBalanceFixture(bc)

	_, err := f.svc.OpenYear(context.Background(), actorWithRole(permission.RoleAdmin), OpenYearRequest{
		ClientID: bc.ClientID.String(),
		TaxYear:  bc.TaxYear,
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestOpenYearForbiddenForNonAdmin(t *testing.T) {
	f := newBalanceFixture()

	_, err := f.svc.OpenYear(context.Background(), actorWithRole(permission.RoleAccountant), OpenYearRequest{
		ClientID: uuid.New().String(),
		TaxYear:  2025,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
