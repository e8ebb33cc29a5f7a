package handler

import (
	"net/http"

	"crm-backend/internal/middleware"
	"crm-backend/internal/model"
	"crm-backend/internal/service"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type GatewayHandler struct {
	base
	gatewayService service.GatewayService
	auth           *middleware.Authenticator
}

func NewGatewayHandler(gatewayService service.GatewayService, auth *middleware.Authenticator, opts Options) *GatewayHandler {
	return &GatewayHandler{base: newBase(opts), gatewayService: gatewayService, auth: auth}
}

func (h *GatewayHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/payment-gateways/active", h.auth.RequirePermission(model.PermGatewaysRead), h.ListActive)
}

// ListActive returns the gateways a payment can be recorded against
// @Summary      List active payment gateways
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.GatewayResponse}
// @Router       /api/payment-gateways/active [get]
func (h *GatewayHandler) ListActive(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	gateways, err := h.gatewayService.ListActive(c.Request.Context(), p.CompanyID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("OK", gateways))
}
