package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/pkg/response"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) RegisterRoutes(router *gin.RouterGroup) {
	chat := router.Group("/api/balance-cases/:id/chat")
	{
		chat.GET("", middleware.RequireAction(permission.ActionViewChat), h.FetchPage)
		chat.POST("", middleware.RequireAction(permission.ActionSendChat), h.Send)
		chat.POST("/read", middleware.RequireAction(permission.ActionViewChat), h.MarkAsRead)
		chat.GET("/unread", middleware.RequireAction(permission.ActionViewChat), h.UnreadCount)
	}
	router.DELETE("/api/chat-messages/:id", middleware.RequireAction(permission.ActionSendChat), h.Delete)
}

// @Summary      Fetch a page of chat messages
// @Description  Returns up to limit visible messages ascending by created_at. Pass before (RFC3339Nano) to page backward.
// @Tags         chat
// @Produce      json
// @Security     BearerAuth
// @Param        id      path   string  true   "Case ID"
// @Param        limit   query  int     false  "Page size (max 50)"
// @Param        before  query  string  false  "Cursor: return messages strictly before this timestamp"
// @Success      200  {object}  response.Response{data=[]service.ChatMessageResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/balance-cases/{id}/chat [get]
func (h *ChatHandler) FetchPage(c *gin.Context) {
	caseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid before cursor"))
			return
		}
		before = &parsed
	}

	msgs, err := h.chatService.FetchPage(c.Request.Context(), actorFrom(c), caseID, limit, before)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, msgs))
}

// @Summary      Send a chat message
// @Tags         chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                      true  "Case ID"
// @Param        payload  body  service.SendMessageRequest  true  "Message content"
// @Success      201  {object}  response.Response{data=service.ChatMessageResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/balance-cases/{id}/chat [post]
func (h *ChatHandler) Send(c *gin.Context) {
	caseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	msg, err := h.chatService.Send(c.Request.Context(), actorFrom(c), caseID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, msg))
}

// MarkAsRead is fire-and-forget; the client issues it after the initial page
// fetch completes.
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	caseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.MarkAsRead(c.Request.Context(), actorFrom(c), caseID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "read state updated"}))
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	caseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	count, err := h.chatService.UnreadCount(c.Request.Context(), actorFrom(c), caseID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"unread": count}))
}

func (h *ChatHandler) Delete(c *gin.Context) {
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.Delete(c.Request.Context(), actorFrom(c), messageID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "message deleted"}))
}
