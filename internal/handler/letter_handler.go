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

type LetterHandler struct {
	letterService service.LetterService
}

func NewLetterHandler(letterService service.LetterService) *LetterHandler {
	return &LetterHandler{letterService: letterService}
}

func (h *LetterHandler) RegisterRoutes(router *gin.RouterGroup) {
	letters := router.Group("/api/letters")
	{
		letters.POST("", middleware.RequireAction(permission.ActionView), h.CreateLetter)
		letters.GET("", middleware.RequireAction(permission.ActionView), h.ListLetters)
		letters.GET("/:id", middleware.RequireAction(permission.ActionView), h.GetLetter)
		letters.POST("/:id/render", middleware.RequireAction(permission.ActionView), h.RenderLetter)
		letters.POST("/:id/send", middleware.RequireAction(permission.ActionView), h.SendLetter)
	}
}

func (h *LetterHandler) CreateLetter(c *gin.Context) {
	var req service.CreateLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	letter, err := h.letterService.CreateLetter(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, letter))
}

func (h *LetterHandler) ListLetters(c *gin.Context) {
	params := pagination.Parse(c)
	letters, total, err := h.letterService.ListLetters(c.Request.Context(), actorFrom(c), c.Query("status"), params.Page, params.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(letters, total, params))
}

func (h *LetterHandler) GetLetter(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := h.letterService.GetLetter(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, letter))
}

// RenderLetter calls the PDF endpoint; the stored-file URL lands on the letter.
func (h *LetterHandler) RenderLetter(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := h.letterService.RenderLetter(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, letter))
}

func (h *LetterHandler) SendLetter(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	letter, err := h.letterService.SendLetter(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, letter))
}
