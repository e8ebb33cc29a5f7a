package handler

import (
	"net/http"

	"crm-backend/internal/middleware"
	"crm-backend/internal/model"
	"crm-backend/internal/service"
	"crm-backend/pkg/pagination"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	base
	auditService service.AuditService
	auth         *middleware.Authenticator
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Authenticator, opts Options) *AuditHandler {
	return &AuditHandler{base: newBase(opts), auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/finance/audit-logs", h.auth.RequirePermission(model.PermInvoicesRead), h.GetAuditLogs)
}

// GetAuditLogs retrieves the finance audit trail, newest first
// @Summary      Get audit logs
// @Description  Lists audit entries of the tenant, optionally for a single invoice, payment or project
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entity_id  query     string  false  "Restrict to one entity"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=response.Page{items=[]service.AuditLogResponse}}
// @Failure      400        {object}  response.Response
// @Router       /api/finance/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), p.CompanyID, c.Query("entity_id"), params.Page, params.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(logs, params.Page, params.Limit, total))
}
