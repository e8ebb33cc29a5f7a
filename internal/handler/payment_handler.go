package handler

import (
	"net/http"

	"crm-backend/internal/apperror"
	"crm-backend/internal/middleware"
	"crm-backend/internal/model"
	"crm-backend/internal/service"
	"crm-backend/pkg/pagination"
	"crm-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	base
	paymentService service.PaymentService
	invoiceService service.InvoiceService
	auth           *middleware.Authenticator
}

func NewPaymentHandler(paymentService service.PaymentService, invoiceService service.InvoiceService, auth *middleware.Authenticator, opts Options) *PaymentHandler {
	return &PaymentHandler{
		base:           newBase(opts),
		paymentService: paymentService,
		invoiceService: invoiceService,
		auth:           auth,
	}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/api/payments")
	{
		payments.GET("", h.auth.RequirePermission(model.PermPaymentsRead), h.ListPayments)
		payments.POST("", h.auth.RequirePermission(model.PermPaymentsWrite), h.CreatePayment)
		payments.GET("/:id", h.auth.RequirePermission(model.PermPaymentsRead), h.GetPayment)
		payments.PUT("/:id/approve", h.auth.RequirePermission(model.PermPaymentsApprove), h.ApprovePayment)
		payments.PUT("/:id/reject", h.auth.RequirePermission(model.PermPaymentsApprove), h.RejectPayment)
	}
}

// ListPayments returns a paginated list of the tenant's payments
// @Summary      List payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        status      query     string  false  "Filter by status (PENDING, APPROVED, REJECTED, CANCELLED)"
// @Param        invoice_id  query     string  false  "Filter by invoice"
// @Param        gateway_id  query     string  false  "Filter by gateway"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Number of items per page (default 20)"
// @Success      200         {object}  response.Response{data=response.Page{items=[]service.PaymentResponse}}
// @Failure      400         {object}  response.Response
// @Router       /api/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	filter := service.PaymentFilter{
		Status:    c.Query("status"),
		InvoiceID: c.Query("invoice_id"),
		GatewayID: c.Query("gateway_id"),
		Page:      params.Page,
		Limit:     params.Limit,
	}

	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), p.CompanyID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(payments, params.Page, params.Limit, total))
}

// CreatePayment records a payment against an invoice
// @Summary      Create payment
// @Description  Records a payment. Auto-approve gateways settle it immediately, others leave it PENDING.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePaymentRequest  true  "Create Payment Payload"
// @Success      201      {object}  response.Response{data=service.PaymentResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req service.CreatePaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if p.Role == model.RoleClient {
		if !h.ownsInvoice(c, p, req.InvoiceID) {
			return
		}
	}

	payment, err := h.paymentService.CreatePayment(c.Request.Context(), p.CompanyID, p.UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success("Payment recorded", payment))
}

// ownsInvoice restricts client-role callers to invoices billed to their own client record.
func (h *PaymentHandler) ownsInvoice(c *gin.Context, p *middleware.Principal, invoiceID string) bool {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), p.CompanyID, invoiceID)
	if err != nil {
		h.respondError(c, err)
		return false
	}
	if p.ClientID == nil || invoice.ClientID != p.ClientID.String() {
		h.respondError(c, apperror.Forbidden("You can only pay invoices issued to you"))
		return false
	}
	return true
}

// GetPayment returns one payment
// @Summary      Get payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Payment ID"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), p.CompanyID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("OK", payment))
}

// ApprovePayment approves a pending payment and reconciles its invoice
// @Summary      Approve payment
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true   "Payment ID"
// @Param        payload  body      service.ApprovePaymentRequest  false  "Approve Payment Payload"
// @Success      200      {object}  response.Response{data=service.PaymentResponse}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/payments/{id}/approve [put]
func (h *PaymentHandler) ApprovePayment(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req service.ApprovePaymentRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	payment, err := h.paymentService.ApprovePayment(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Payment approved", payment))
}

// RejectPayment rejects a pending payment
// @Summary      Reject payment
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true   "Payment ID"
// @Param        payload  body      service.RejectPaymentRequest  false  "Reject Payment Payload"
// @Success      200      {object}  response.Response{data=service.PaymentResponse}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/payments/{id}/reject [put]
func (h *PaymentHandler) RejectPayment(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req service.RejectPaymentRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	payment, err := h.paymentService.RejectPayment(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Payment rejected", payment))
}
