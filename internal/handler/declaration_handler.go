package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/pkg/pagination"
	"github.com/nivtax/balanca-backend/pkg/response"
)

type DeclarationHandler struct {
	declarationService service.DeclarationService
}

func NewDeclarationHandler(declarationService service.DeclarationService) *DeclarationHandler {
	return &DeclarationHandler{declarationService: declarationService}
}

func (h *DeclarationHandler) RegisterRoutes(router *gin.RouterGroup) {
	decls := router.Group("/api/capital-declarations")
	{
		decls.POST("", middleware.RequireAction(permission.ActionView), h.CreateDeclaration)
		decls.GET("", middleware.RequireAction(permission.ActionView), h.ListDeclarations)
		decls.PUT("/:id", middleware.RequireAction(permission.ActionView), h.UpdateDeclaration)
		decls.POST("/remind", middleware.RequireAction(permission.ActionOpenYear), h.SendReminders)
	}
}

func (h *DeclarationHandler) CreateDeclaration(c *gin.Context) {
	var req service.CreateDeclarationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	decl, err := h.declarationService.CreateDeclaration(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, decl))
}

func (h *DeclarationHandler) ListDeclarations(c *gin.Context) {
	params := pagination.Parse(c)
	decls, total, err := h.declarationService.ListDeclarations(c.Request.Context(), actorFrom(c), c.Query("status"), params.Page, params.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(decls, total, params))
}

func (h *DeclarationHandler) UpdateDeclaration(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdateDeclarationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	decl, err := h.declarationService.UpdateDeclaration(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, decl))
}

// SendReminders emails clients whose requested declarations fall due in the
// next 30 days.
func (h *DeclarationHandler) SendReminders(c *gin.Context) {
	sent, err := h.declarationService.SendReminders(c.Request.Context(), actorFrom(c), 30*24*time.Hour)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"reminders_sent": sent}))
}
