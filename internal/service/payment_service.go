package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/nivtax/balanca-backend/internal/model"
	"github.com/nivtax/balanca-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// methodDiscounts applies a method-specific discount to the fee: paying by
// bank transfer or check avoids the gateway commission, which the firm passes
// on.
var methodDiscounts = map[string]decimal.Decimal{
	model.PaymentMethodCreditCard:   decimal.Zero,
	model.PaymentMethodBankTransfer: decimal.NewFromFloat(0.03),
	model.PaymentMethodCheck:        decimal.NewFromFloat(0.015),
}

type CreatePaymentRequest struct {
	CaseID string          `json:"case_id" binding:"required,uuid"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method" binding:"required,oneof=credit_card bank_transfer check"`
}

type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	CaseID        uuid.UUID       `json:"case_id"`
	Amount        decimal.Decimal `json:"amount"`
	DiscountRate  decimal.Decimal `json:"discount_rate"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	// RedirectURL points at the hosted payment page for card payments, or the
	// local instructions page for transfers and checks.
	RedirectURL string     `json:"redirect_url"`
	PaidAt      *time.Time `json:"paid_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type PaymentService interface {
	CreatePayment(ctx context.Context, actor Actor, req CreatePaymentRequest) (*PaymentResponse, error)
	GetPayment(ctx context.Context, actor Actor, id uuid.UUID) (*PaymentResponse, error)
	ListByCase(ctx context.Context, actor Actor, caseID uuid.UUID) ([]PaymentResponse, error)
	// MarkPaid records a gateway success callback.
	MarkPaid(ctx context.Context, id uuid.UUID) error
}

type paymentService struct {
	payments   repository.PaymentRepository
	cases      repository.BalanceCaseRepository
	audit      repository.AuditRepository
	txm        repository.TransactionManager
	gatewayURL string
	appBaseURL string
}

func NewPaymentService(
	payments repository.PaymentRepository,
	cases repository.BalanceCaseRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
	gatewayURL, appBaseURL string,
) PaymentService {
	return &paymentService{
		payments:   payments,
		cases:      cases,
		audit:      audit,
		txm:        txm,
		gatewayURL: gatewayURL,
		appBaseURL: appBaseURL,
	}
}

func mapPaymentToResponse(p *model.PaymentOrder) *PaymentResponse {
	return &PaymentResponse{
		ID:            p.ID,
		CaseID:        p.CaseID,
		Amount:        p.Amount,
		DiscountRate:  p.DiscountRate,
		ChargedAmount: p.ChargedAmount,
		Method:        p.Method,
		Status:        p.Status,
		RedirectURL:   p.RedirectURL,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
	}
}

func (s *paymentService) CreatePayment(ctx context.Context, actor Actor, req CreatePaymentRequest) (*PaymentResponse, error) {
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("invalid case_id: %w", err)
	}
	bc, err := s.cases.GetByID(ctx, caseID)
	if err != nil || bc.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}

	discount, ok := methodDiscounts[req.Method]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", req.Method)
	}

	charged := req.Amount.Mul(decimal.NewFromInt(1).Sub(discount)).Round(2)

	order := &model.PaymentOrder{
		Tenant:        actor.Tenant,
		CaseID:        caseID,
		Amount:        req.Amount,
		DiscountRate:  discount,
		ChargedAmount: charged,
		Method:        req.Method,
		Status:        model.PaymentStatusPending,
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create payment order: %w", err)
		}

		order.RedirectURL = s.redirectFor(order)
		order.Status = model.PaymentStatusRedirected
		if err := s.payments.Update(txCtx, order); err != nil {
			return fmt.Errorf("failed to record redirect: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"method":  req.Method,
			"amount":  req.Amount,
			"charged": charged,
		})
		return s.audit.Log(txCtx, &model.AuditLog{
			Tenant:   actor.Tenant,
			UserID:   &actor.UserID,
			Action:   model.ActionCreatePaymentOrder,
			EntityID: order.ID.String(),
			Details:  string(payload),
		})
	})
	if err != nil {
		return nil, err
	}

	return mapPaymentToResponse(order), nil
}

// redirectFor builds the hosted gateway URL for card payments; transfers and
// checks get the locally rendered instructions page instead.
func (s *paymentService) redirectFor(order *model.PaymentOrder) string {
	if order.Method == model.PaymentMethodCreditCard {
		q := url.Values{}
		q.Set("order_id", order.ID.String())
		q.Set("amount", order.ChargedAmount.StringFixed(2))
		return s.gatewayURL + "?" + q.Encode()
	}
	return s.appBaseURL + "/payments/" + order.ID.String() + "/instructions"
}

func (s *paymentService) GetPayment(ctx context.Context, actor Actor, id uuid.UUID) (*PaymentResponse, error) {
	order, err := s.payments.GetByID(ctx, id)
	if err != nil || order.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}
	return mapPaymentToResponse(order), nil
}

func (s *paymentService) ListByCase(ctx context.Context, actor Actor, caseID uuid.UUID) ([]PaymentResponse, error) {
	bc, err := s.cases.GetByID(ctx, caseID)
	if err != nil || bc.Tenant != actor.Tenant {
		return nil, ErrNotFound
	}

	orders, err := s.payments.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	res := make([]PaymentResponse, 0, len(orders))
	for i := range orders {
		res = append(res, *mapPaymentToResponse(&orders[i]))
	}
	return res, nil
}

func (s *paymentService) MarkPaid(ctx context.Context, id uuid.UUID) error {
	order, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if order.Status == model.PaymentStatusPaid {
		return nil
	}

	now := time.Now()
	order.Status = model.PaymentStatusPaid
	order.PaidAt = &now
	return s.payments.Update(ctx, order)
}
