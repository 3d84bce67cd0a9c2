package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/repository"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/internal/workflow"
	"github.com/nivtax/balanca-backend/pkg/pagination"
	"github.com/nivtax/balanca-backend/pkg/response"
)

type BalanceHandler struct {
	balanceService service.BalanceService
}

func NewBalanceHandler(balanceService service.BalanceService) *BalanceHandler {
	return &BalanceHandler{balanceService: balanceService}
}

func (h *BalanceHandler) RegisterRoutes(router *gin.RouterGroup) {
	cases := router.Group("/api/balance-cases")
	{
		cases.POST("", middleware.RequireAction(permission.ActionOpenYear), h.OpenYear)
		cases.GET("", middleware.RequireAction(permission.ActionView), h.ListCases)
		cases.GET("/export", middleware.RequireAction(permission.ActionView), h.ExportCases)
		cases.GET("/statuses", middleware.RequireAuth(), h.ListStatuses)
		cases.GET("/:id", middleware.RequireAction(permission.ActionView), h.GetCase)
		cases.GET("/:id/history", middleware.RequireAction(permission.ActionView), h.History)
		cases.PATCH("/:id/status", middleware.RequireAction(permission.ActionChangeStatus), h.ChangeStatus)
		cases.PATCH("/:id/auditor", middleware.RequireAction(permission.ActionAssignAuditor), h.AssignAuditor)
		cases.POST("/:id/confirm", middleware.RequireAction(permission.ActionConfirmAssignment), h.ConfirmAssignment)
		cases.PATCH("/:id/financials", middleware.RequireAction(permission.ActionView), h.UpdateFinancials)
	}
	router.GET("/api/clients/:id/balance-cases", middleware.RequireAction(permission.ActionView), h.ListByClient)
}

// @Summary      Open a new balance year for a client
// @Tags         balance-cases
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.OpenYearRequest  true  "Open Year Payload"
// @Success      201      {object}  response.Response{data=service.BalanceCaseResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/balance-cases [post]
func (h *BalanceHandler) OpenYear(c *gin.Context) {
	var req service.OpenYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	bc, err := h.balanceService.OpenYear(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, bc))
}

// @Summary      List balance cases
// @Tags         balance-cases
// @Produce      json
// @Security     BearerAuth
// @Param        year        query  int     false  "Tax year"
// @Param        status      query  string  false  "Workflow status"
// @Param        auditor_id  query  string  false  "Assigned auditor"
// @Success      200  {object}  response.ListResponse
// @Router       /api/balance-cases [get]
func (h *BalanceHandler) ListCases(c *gin.Context) {
	params := pagination.Parse(c)
	filter := h.filterFrom(c, params)

	cases, total, err := h.balanceService.ListCases(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(cases, total, params))
}

func (h *BalanceHandler) filterFrom(c *gin.Context, params pagination.Params) repository.CaseFilter {
	year, _ := strconv.Atoi(c.Query("year"))
	return repository.CaseFilter{
		Tenant:    c.GetString(middleware.CtxTenant),
		TaxYear:   year,
		Status:    c.Query("status"),
		AuditorID: c.Query("auditor_id"),
		ClientID:  c.Query("client_id"),
		Page:      params.Page,
		Limit:     params.Limit,
	}
}

// ExportCases streams the filtered case list as an .xlsx workbook.
func (h *BalanceHandler) ExportCases(c *gin.Context) {
	filter := h.filterFrom(c, pagination.Params{Page: 1, Limit: pagination.MaxLimit})

	f, err := h.balanceService.ExportCases(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="balance-cases.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		fail(c, err)
	}
}

// ListStatuses returns the workflow sequence with display metadata, so the
// client renders labels and colors from one source of truth.
func (h *BalanceHandler) ListStatuses(c *gin.Context) {
	type statusItem struct {
		Status string `json:"status"`
		Label  string `json:"label"`
		Color  string `json:"color"`
	}

	items := make([]statusItem, 0, len(workflow.All()))
	for _, s := range workflow.All() {
		meta, _ := workflow.MetaOf(s)
		items = append(items, statusItem{Status: string(s), Label: meta.Label, Color: meta.Color})
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}

func (h *BalanceHandler) GetCase(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	bc, err := h.balanceService.GetCase(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, bc))
}

func (h *BalanceHandler) History(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.balanceService.History(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entries))
}

// @Summary      Change case workflow status
// @Description  Advances one step by default; admins may jump or revert. A note is optional.
// @Tags         balance-cases
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Case ID"
// @Param        payload  body      service.ChangeStatusRequest  true  "Target status and note"
// @Success      200      {object}  response.Response{data=service.BalanceCaseResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/balance-cases/{id}/status [patch]
func (h *BalanceHandler) ChangeStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	bc, err := h.balanceService.ChangeStatus(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, bc))
}

func (h *BalanceHandler) AssignAuditor(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.AssignAuditorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	bc, err := h.balanceService.AssignAuditor(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, bc))
}

func (h *BalanceHandler) ConfirmAssignment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	bc, err := h.balanceService.ConfirmAssignment(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, bc))
}

func (h *BalanceHandler) UpdateFinancials(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdateFinancialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	bc, err := h.balanceService.UpdateFinancials(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, bc))
}

func (h *BalanceHandler) ListByClient(c *gin.Context) {
	clientID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	cases, err := h.balanceService.ListByClient(c.Request.Context(), actorFrom(c), clientID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cases))
}
