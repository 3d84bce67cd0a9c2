package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/pkg/response"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/api/payments")
	{
		payments.POST("", middleware.RequireAction(permission.ActionView), h.CreatePayment)
		payments.GET("/:id", middleware.RequireAction(permission.ActionView), h.GetPayment)
		payments.GET("/:id/redirect", middleware.RequireAction(permission.ActionView), h.Redirect)
		// Gateway success callback, authenticated by the gateway's shared secret
		// upstream of this service.
		payments.POST("/:id/paid", h.MarkPaid)
	}
	router.GET("/api/balance-cases/:id/payments", middleware.RequireAction(permission.ActionView), h.ListByCase)
}

// @Summary      Create a payment order
// @Description  Applies the method-specific discount and returns a redirect URL to the hosted payment page or the local instructions page.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreatePaymentRequest  true  "Payment Payload"
// @Success      201      {object}  response.Response{data=service.PaymentResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	order, err := h.paymentService.CreatePayment(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.paymentService.GetPayment(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// Redirect issues the HTTP redirect to the order's payment destination.
func (h *PaymentHandler) Redirect(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.paymentService.GetPayment(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, order.RedirectURL)
}

func (h *PaymentHandler) MarkPaid(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.paymentService.MarkPaid(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "payment recorded"}))
}

func (h *PaymentHandler) ListByCase(c *gin.Context) {
	caseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	orders, err := h.paymentService.ListByCase(c.Request.Context(), actorFrom(c), caseID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, orders))
}
