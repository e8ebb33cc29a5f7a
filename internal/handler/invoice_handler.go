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

type InvoiceHandler struct {
	base
	invoiceService service.InvoiceService
	paymentService service.PaymentService
	auth           *middleware.Authenticator
}

func NewInvoiceHandler(invoiceService service.InvoiceService, paymentService service.PaymentService, auth *middleware.Authenticator, opts Options) *InvoiceHandler {
	return &InvoiceHandler{
		base:           newBase(opts),
		invoiceService: invoiceService,
		paymentService: paymentService,
		auth:           auth,
	}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/finance/invoices")
	{
		invoices.GET("", h.auth.RequirePermission(model.PermInvoicesRead), h.ListInvoices)
		invoices.POST("", h.auth.RequirePermission(model.PermInvoicesWrite), h.CreateInvoice)
		invoices.POST("/from-project", h.auth.RequirePermission(model.PermInvoicesWrite), h.CreateInvoiceFromProject)
		invoices.GET("/:id", h.auth.RequirePermission(model.PermInvoicesRead), h.GetInvoice)
		invoices.PUT("/:id", h.auth.RequirePermission(model.PermInvoicesWrite), h.UpdateInvoice)
		invoices.DELETE("/:id", h.auth.RequirePermission(model.PermInvoicesDelete), h.DeleteInvoice)
		invoices.POST("/:id/renew", h.auth.RequirePermission(model.PermInvoicesWrite), h.RenewInvoice)
		invoices.POST("/:id/cancel", h.auth.RequirePermission(model.PermInvoicesWrite), h.CancelInvoice)
		invoices.POST("/:id/reconcile", h.auth.RequirePermission(model.PermInvoicesWrite), h.ReconcileInvoice)
		invoices.GET("/:id/payments", h.auth.RequirePermission(model.PermPaymentsRead), h.GetInvoicePayments)
	}
}

// ListInvoices returns a paginated list of the tenant's invoices
// @Summary      List invoices
// @Description  Retrieves a paginated list of invoices, optionally filtered by status, client, project or number
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        status      query     string  false  "Filter by status (UNPAID, PAID, OVERDUE, CANCELLED)"
// @Param        client_id   query     string  false  "Filter by client"
// @Param        project_id  query     string  false  "Filter by project"
// @Param        search      query     string  false  "Partial invoice number"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Number of items per page (default 20)"
// @Success      200         {object}  response.Response{data=response.Page{items=[]service.InvoiceResponse}}
// @Failure      400         {object}  response.Response
// @Router       /api/finance/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	filter := service.InvoiceFilter{
		Status:    c.Query("status"),
		ClientID:  c.Query("client_id"),
		ProjectID: c.Query("project_id"),
		Search:    c.Query("search"),
		Page:      params.Page,
		Limit:     params.Limit,
	}

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), p.CompanyID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(invoices, params.Page, params.Limit, total))
}

// CreateInvoice creates an invoice with its items
// @Summary      Create invoice
// @Description  Creates an invoice for a client. The number is generated unless one is supplied.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateInvoiceRequest  true  "Create Invoice Payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/finance/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req service.CreateInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), p.CompanyID, p.UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success("Invoice created", invoice))
}

// CreateInvoiceFromProject creates an invoice billed to the project's client
// @Summary      Create invoice from project
// @Description  Creates an invoice for a project, defaulting the client and the dates
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateInvoiceFromProjectRequest  true  "Create Invoice From Project Payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/finance/invoices/from-project [post]
func (h *InvoiceHandler) CreateInvoiceFromProject(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req service.CreateInvoiceFromProjectRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.CreateInvoiceFromProject(c.Request.Context(), p.CompanyID, p.UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success("Invoice created", invoice))
}

// GetInvoice returns one invoice with its items and derived amounts
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/finance/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), p.CompanyID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("OK", invoice))
}

// UpdateInvoice edits an invoice
// @Summary      Update invoice
// @Description  Partially updates an invoice. Items of a PAID invoice cannot change.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.UpdateInvoiceRequest  true  "Update Invoice Payload"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/finance/invoices/{id} [put]
func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req service.UpdateInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.UpdateInvoice(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Invoice updated", invoice))
}

// DeleteInvoice removes an invoice without approved payments
// @Summary      Delete invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/finance/invoices/{id} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	if err := h.invoiceService.DeleteInvoice(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Invoice deleted", nil))
}

// RenewInvoice issues a copy of an invoice for the next period
// @Summary      Renew invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Source invoice ID"
// @Success      201  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/finance/invoices/{id}/renew [post]
func (h *InvoiceHandler) RenewInvoice(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.RenewInvoice(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success("Invoice renewed", invoice))
}

// CancelInvoice marks an invoice CANCELLED
// @Summary      Cancel invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/finance/invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.CancelInvoice(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Invoice cancelled", invoice))
}

// ReconcileInvoice recomputes the invoice status from its approved payments
// @Summary      Reconcile invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/finance/invoices/{id}/reconcile [post]
func (h *InvoiceHandler) ReconcileInvoice(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.ReconcileInvoice(c.Request.Context(), p.CompanyID, p.UserID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("Invoice reconciled", invoice))
}

// GetInvoicePayments lists every payment recorded against an invoice
// @Summary      List invoice payments
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=[]service.PaymentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/finance/invoices/{id}/payments [get]
func (h *InvoiceHandler) GetInvoicePayments(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	payments, err := h.paymentService.GetPaymentsByInvoice(c.Request.Context(), p.CompanyID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success("OK", payments))
}
