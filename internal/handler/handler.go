package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nivtax/balanca-backend/internal/middleware"
	"github.com/nivtax/balanca-backend/internal/permission"
	"github.com/nivtax/balanca-backend/internal/service"
	"github.com/nivtax/balanca-backend/pkg/response"
)

// actorFrom builds the service Actor from the values the auth middleware put
// in the request context.
func actorFrom(c *gin.Context) service.Actor {
	userID, _ := uuid.Parse(c.GetString(middleware.CtxUserID))
	role, _ := permission.ParseRole(c.GetString(middleware.CtxRole))
	return service.Actor{
		UserID: userID,
		Tenant: c.GetString(middleware.CtxTenant),
		Role:   role,
	}
}

// fail maps service errors to HTTP status codes and writes the envelope.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrAlreadyExists):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
	}
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
