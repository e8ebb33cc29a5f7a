package handler

import (
	"net/http"

	"crm-backend/internal/apperror"
	"crm-backend/internal/middleware"
	"crm-backend/internal/service"
	"crm-backend/pkg/logger"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configures behaviour shared by every handler.
type Options struct {
	HideInternalErrors bool
}

// base carries behaviour shared by every handler.
type base struct {
	// hideInternal replaces the message of 5xx responses with a generic one.
	hideInternal bool
}

func newBase(opts Options) base {
	return base{hideInternal: opts.HideInternalErrors}
}

// respondError writes the error envelope for err and logs it.
func (b base) respondError(c *gin.Context, err error) {
	appErr := apperror.FromError(err)
	log := logger.FromContext(c.Request.Context()).With(
		zap.String("code", appErr.Code),
		zap.String("path", c.FullPath()),
	)

	message, details := appErr.Message, appErr.Details
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request failed", zap.Error(err))
		if b.hideInternal {
			message, details = apperror.ErrInternal.Message, nil
		}
	} else {
		log.Info("Request rejected", zap.String("reason", appErr.Message))
	}

	c.AbortWithStatusJSON(appErr.StatusCode, response.Error(appErr.Code, message, details))
}

// bindJSON binds the body into req, answering 400 on failure.
func (b base) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		b.respondError(c, apperror.ParseValidationErrors(err))
		return false
	}
	return true
}

// bindOptionalJSON is bindJSON for endpoints whose body may be omitted.
func (b base) bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return b.bindJSON(c, req)
}

// principal returns the caller authenticated by the route's permission middleware.
func (b base) principal(c *gin.Context) (*middleware.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		b.respondError(c, apperror.ErrUnauthorized)
		return nil, false
	}
	return p, true
}

func viewerOf(p *middleware.Principal) service.Viewer {
	return service.Viewer{
		UserID:   p.UserID,
		Role:     p.Role,
		ClientID: p.ClientID,
		Email:    p.Email,
	}
}
