package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/pkg/pagination"
	"github.com/nivtax/balanca-backend/pkg/response"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Only admins review the audit trail.
	router.GET("/api/audit-logs", middleware.RequireAction(permission.ActionOpenYear), h.ListAuditLogs)
}

// @Summary      List audit logs
// @Description  Returns the tenant's audit trail, newest first.
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  response.ListResponse{data=[]service.AuditLogResponse}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), c.GetString(middleware.CtxTenant), p.PageNumber(), p.PageLimit())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(logs, total, p))
}
