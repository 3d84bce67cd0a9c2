package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/repository"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/internal/workflow"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("balancestatus", func(fl validator.FieldLevel) bool {
			return workflow.IsValid(workflow.Status(fl.Field().String()))
		})
	}
	os.Exit(m.Run())
}

type fakeBalanceService struct {
	changeStatus func(actor service.Actor, caseID uuid.UUID, req service.ChangeStatusRequest) (*service.BalanceCaseResponse, error)
}

func (f *fakeBalanceService) OpenYear(_ context.Context, actor service.Actor, req service.OpenYearRequest) (*service.BalanceCaseResponse, error) {
	return &service.BalanceCaseResponse{ID: uuid.New(), TaxYear: req.TaxYear}, nil
}

func (f *fakeBalanceService) GetCase(context.Context, service.Actor, uuid.UUID) (*service.BalanceCaseResponse, error) {
	return nil, service.ErrNotFound
}

func (f *fakeBalanceService) ListCases(context.Context, repository.CaseFilter) ([]service.BalanceCaseResponse, int64, error) {
	return nil, 0, nil
}

func (f *fakeBalanceService) ListByClient(context.Context, service.Actor, uuid.UUID) ([]service.BalanceCaseResponse, error) {
	return nil, nil
}

func (f *fakeBalanceService) ChangeStatus(_ context.Context, actor service.Actor, caseID uuid.UUID, req service.ChangeStatusRequest) (*service.BalanceCaseResponse, error) {
	if f.changeStatus != nil {
		return f.changeStatus(actor, caseID, req)
	}
	return nil, service.ErrNotFound
}

func (f *fakeBalanceService) AssignAuditor(context.Context, service.Actor, uuid.UUID, service.AssignAuditorRequest) (*service.BalanceCaseResponse, error) {
	return nil, service.ErrNotFound
}

func (f *fakeBalanceService) ConfirmAssignment(context.Context, service.Actor, uuid.UUID) (*service.BalanceCaseResponse, error) {
	return nil, service.ErrNotFound
}

func (f *fakeBalanceService) UpdateFinancials(context.Context, service.Actor, uuid.UUID, service.UpdateFinancialsRequest) (*service.BalanceCaseResponse, error) {
	return nil, service.ErrNotFound
}

func (f *fakeBalanceService) History(context.Context, uuid.UUID) ([]service.StatusHistoryResponse, error) {
	return nil, nil
}

func (f *fakeBalanceService) ExportCases(context.Context, repository.CaseFilter) (*excelize.File, error) {
	return excelize.NewFile(), nil
}

func newBalanceRouter(svc service.BalanceService) *gin.Engine {
	router := gin.New()
	NewBalanceHandler(svc).RegisterRoutes(router.Group(""))
	return router
}

func tokenFor(t *testing.T, role permission.Role) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":    uuid.NewString(),
		"role":   string(role),
		"tenant": "firm-a",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(middleware.GetJWTSecret())
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChangeStatusEndpoint(t *testing.T) {
	caseID := uuid.New()
	var gotActor service.Actor
	var gotReq service.ChangeStatusRequest
	svc := &fakeBalanceService{
		changeStatus: func(actor service.Actor, id uuid.UUID, req service.ChangeStatusRequest) (*service.BalanceCaseResponse, error) {
			gotActor = actor
			gotReq = req
			return &service.BalanceCaseResponse{ID: id, Status: req.Target}, nil
		},
	}
	router := newBalanceRouter(svc)

	w := doJSON(t, router, http.MethodPatch, "/api/balance-cases/"+caseID.String()+"/status",
		tokenFor(t, permission.RoleAccountant),
		map[string]string{"target": string(workflow.StatusMaterialsReceived), "note": "docs in"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gotActor.Role != permission.RoleAccountant || gotActor.Tenant != "firm-a" {
		t.Errorf("actor not resolved from token: %+v", gotActor)
	}
	if gotReq.Target != string(workflow.StatusMaterialsReceived) || gotReq.Note != "docs in" {
		t.Errorf("request not bound: %+v", gotReq)
	}
}

func TestChangeStatusRejectsUnknownTarget(t *testing.T) {
	router := newBalanceRouter(&fakeBalanceService{
		changeStatus: func(service.Actor, uuid.UUID, service.ChangeStatusRequest) (*service.BalanceCaseResponse, error) {
			t.Fatal("binding should reject the payload before the service")
			return nil, nil
		},
	})

	w := doJSON(t, router, http.MethodPatch, "/api/balance-cases/"+uuid.NewString()+"/status",
		tokenFor(t, permission.RoleAdmin),
		map[string]string{"target": "not_a_status"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestChangeStatusConflictMapsTo409(t *testing.T) {
	router := newBalanceRouter(&fakeBalanceService{
		changeStatus: func(service.Actor, uuid.UUID, service.ChangeStatusRequest) (*service.BalanceCaseResponse, error) {
			return nil, service.ErrInvalidTransition
		},
	})

	w := doJSON(t, router, http.MethodPatch, "/api/balance-cases/"+uuid.NewString()+"/status",
		tokenFor(t, permission.RoleBookkeeper), map[string]string{})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestOpenYearRequiresAdmin(t *testing.T) {
	router := newBalanceRouter(&fakeBalanceService{})

	w := doJSON(t, router, http.MethodPost, "/api/balance-cases",
		tokenFor(t, permission.RoleAccountant),
		map[string]interface{}{"client_id": uuid.NewString(), "tax_year": 2025})
	if w.Code != http.StatusForbidden {
		t.Fatalf("accountant opening a year: status = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/balance-cases",
		tokenFor(t, permission.RoleAdmin),
		map[string]interface{}{"client_id": uuid.NewString(), "tax_year": 2025})
	if w.Code != http.StatusCreated {
		t.Fatalf("admin opening a year: status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	router := newBalanceRouter(&fakeBalanceService{})

	w := doJSON(t, router, http.MethodGet, "/api/balance-cases", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestListStatusesReturnsWorkflowMetadata(t *testing.T) {
	router := newBalanceRouter(&fakeBalanceService{})

	w := doJSON(t, router, http.MethodGet, "/api/balance-cases/statuses",
		tokenFor(t, permission.RoleBookkeeper), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var env struct {
		Data []struct {
			Status string `json:"status"`
			Label  string `json:"label"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if len(env.Data) != len(workflow.All()) {
		t.Fatalf("expected %d statuses, got %d", len(workflow.All()), len(env.Data))
	}
	for _, item := range env.Data {
		if item.Label == "" {
			t.Errorf("status %s missing label", item.Status)
		}
	}
}
