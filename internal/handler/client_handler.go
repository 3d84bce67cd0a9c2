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

type ClientHandler struct {
	clientService service.ClientService
}

func NewClientHandler(clientService service.ClientService) *ClientHandler {
	return &ClientHandler{clientService: clientService}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/api/clients")
	{
		clients.POST("", middleware.RequireAction(permission.ActionView), h.CreateClient)
		clients.GET("", middleware.RequireAction(permission.ActionView), h.ListClients)
		clients.GET("/:id", middleware.RequireAction(permission.ActionView), h.GetClient)
		clients.PUT("/:id", middleware.RequireAction(permission.ActionView), h.UpdateClient)
		clients.DELETE("/:id", middleware.RequireAction(permission.ActionOpenYear), h.DeleteClient)
	}
}

// @Summary      Create a client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateClientRequest  true  "Client Payload"
// @Success      201      {object}  response.Response{data=service.ClientResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	client, err := h.clientService.CreateClient(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

func (h *ClientHandler) ListClients(c *gin.Context) {
	params := pagination.Parse(c)
	clients, total, err := h.clientService.ListClients(c.Request.Context(), actorFrom(c), c.Query("search"), params.Page, params.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(clients, total, params))
}

func (h *ClientHandler) GetClient(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	client, err := h.clientService.GetClient(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

func (h *ClientHandler) UpdateClient(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	client, err := h.clientService.UpdateClient(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

func (h *ClientHandler) DeleteClient(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.clientService.DeleteClient(c.Request.Context(), actorFrom(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "client deleted"}))
}
