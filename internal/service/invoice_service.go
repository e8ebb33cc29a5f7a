package service

import (
	"context"
	"strings"
	"time"

	"crm-backend/internal/apperror"
	"crm-backend/internal/metrics"
	"crm-backend/internal/model"
	"crm-backend/internal/repository"
	"crm-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDueDays is the payment term applied when an invoice is created from a project
// without an explicit due date.
const DefaultDueDays = 30

// --- DTOs ---

type InvoiceItemRequest struct {
	Description string `json:"description" binding:"required,max=500"`
	Quantity    string `json:"quantity" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
}

type CreateInvoiceRequest struct {
	ClientID      string               `json:"client_id" binding:"required,uuid"`
	ProjectID     string               `json:"project_id" binding:"omitempty,uuid"`
	InvoiceNumber string               `json:"invoice_number" binding:"max=40"` // Optional: generated when empty
	Items         []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
	IssueDate     string               `json:"issue_date" binding:"required"`
	DueDate       string               `json:"due_date" binding:"required"`
	Notes         string               `json:"notes"`
}

type CreateInvoiceFromProjectRequest struct {
	ProjectID string               `json:"project_id" binding:"required,uuid"`
	Items     []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
	IssueDate string               `json:"issue_date"` // Optional, defaults to today
	DueDate   string               `json:"due_date"`   // Optional, defaults to issue date + 30 days
	Notes     string               `json:"notes"`
}

// UpdateInvoiceRequest is a partial update. Nil fields are left unchanged; an empty
// project_id detaches the invoice from its project; items replace the existing lines.
type UpdateInvoiceRequest struct {
	ClientID  *string              `json:"client_id" binding:"omitempty,uuid"`
	ProjectID *string              `json:"project_id"`
	IssueDate *string              `json:"issue_date"`
	DueDate   *string              `json:"due_date"`
	Notes     *string              `json:"notes"`
	Items     []InvoiceItemRequest `json:"items" binding:"omitempty,dive"`
}

type InvoiceFilter struct {
	Status    string // UNPAID, PAID, OVERDUE, CANCELLED or empty for all
	ClientID  string
	ProjectID string
	Search    string // partial match on invoice_number
	Page      int
	Limit     int
}

type InvoiceItemResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
	Position    int    `json:"position"`
}

type InvoiceResponse struct {
	ID            string                `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	ClientID      string                `json:"client_id"`
	ClientName    string                `json:"client_name,omitempty"`
	ProjectID     *string               `json:"project_id"`
	IssueDate     string                `json:"issue_date"`
	DueDate       string                `json:"due_date"`
	TotalAmount   string                `json:"total_amount"`
	PaidAmount    string                `json:"paid_amount"`
	DueAmount     string                `json:"due_amount"`
	CreditAmount  string                `json:"credit_amount"`
	Status        string                `json:"status"`
	Notes         string                `json:"notes"`
	RenewedFromID *string               `json:"renewed_from_id"`
	Items         []InvoiceItemResponse `json:"items"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

// --- Interface ---

type InvoiceService interface {
	CreateInvoice(ctx context.Context, companyID, actorID uuid.UUID, req CreateInvoiceRequest) (InvoiceResponse, error)
	CreateInvoiceFromProject(ctx context.Context, companyID, actorID uuid.UUID, req CreateInvoiceFromProjectRequest) (InvoiceResponse, error)
	GetInvoice(ctx context.Context, companyID uuid.UUID, id string) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, companyID uuid.UUID, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	UpdateInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string, req UpdateInvoiceRequest) (InvoiceResponse, error)
	DeleteInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) error
	CancelInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) (InvoiceResponse, error)
	RenewInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) (InvoiceResponse, error)
	ReconcileInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) (InvoiceResponse, error)
}

// InvoiceOptions tunes invoice defaults.
type InvoiceOptions struct {
	DefaultDueDays int
	Now            Clock
}

type invoiceService struct {
	invoiceRepo    repository.InvoiceRepository
	paymentRepo    repository.PaymentRepository
	clientRepo     repository.ClientRepository
	projectRepo    repository.ProjectRepository
	auditRepo      repository.AuditRepository
	numbers        *InvoiceNumberGenerator
	reconciler     *Reconciler
	txManager      repository.TransactionManager
	publisher      EventPublisher
	defaultDueDays int
	now            Clock
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	clientRepo repository.ClientRepository,
	projectRepo repository.ProjectRepository,
	auditRepo repository.AuditRepository,
	numbers *InvoiceNumberGenerator,
	reconciler *Reconciler,
	txManager repository.TransactionManager,
	publisher EventPublisher,
	opts InvoiceOptions,
) InvoiceService {
	dueDays := opts.DefaultDueDays
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}
	return &invoiceService{
		invoiceRepo:    invoiceRepo,
		paymentRepo:    paymentRepo,
		clientRepo:     clientRepo,
		projectRepo:    projectRepo,
		auditRepo:      auditRepo,
		numbers:        numbers,
		reconciler:     reconciler,
		txManager:      txManager,
		publisher:      publisherOrNoop(publisher),
		defaultDueDays: dueDays,
		now:            clockOrNow(opts.Now),
	}
}

// invoiceDraft is a validated create request, whichever endpoint it came from.
type invoiceDraft struct {
	clientID  uuid.UUID
	projectID *uuid.UUID
	number    string
	items     []model.InvoiceItem
	issueDate time.Time
	dueDate   time.Time
	notes     string
}

// --- Implementation ---

func (s *invoiceService) CreateInvoice(ctx context.Context, companyID, actorID uuid.UUID, req CreateInvoiceRequest) (InvoiceResponse, error) {
	clientID, err := parseID("client_id", req.ClientID)
	if err != nil {
		return InvoiceResponse{}, err
	}

	var projectID *uuid.UUID
	if strings.TrimSpace(req.ProjectID) != "" {
		parsed, err := parseID("project_id", req.ProjectID)
		if err != nil {
			return InvoiceResponse{}, err
		}
		projectID = &parsed
	}

	items, err := buildItems(req.Items)
	if err != nil {
		return InvoiceResponse{}, err
	}

	issueDate, err := parseDate("issue_date", req.IssueDate)
	if err != nil {
		return InvoiceResponse{}, err
	}
	dueDate, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if err := validateDates(issueDate, dueDate); err != nil {
		return InvoiceResponse{}, err
	}

	return s.create(ctx, companyID, actorID, invoiceDraft{
		clientID:  clientID,
		projectID: projectID,
		number:    req.InvoiceNumber,
		items:     items,
		issueDate: issueDate,
		dueDate:   dueDate,
		notes:     req.Notes,
	})
}

func (s *invoiceService) CreateInvoiceFromProject(ctx context.Context, companyID, actorID uuid.UUID, req CreateInvoiceFromProjectRequest) (InvoiceResponse, error) {
	projectID, err := parseID("project_id", req.ProjectID)
	if err != nil {
		return InvoiceResponse{}, err
	}

	items, err := buildItems(req.Items)
	if err != nil {
		return InvoiceResponse{}, err
	}

	issueDate := s.now()
	if strings.TrimSpace(req.IssueDate) != "" {
		if issueDate, err = parseDate("issue_date", req.IssueDate); err != nil {
			return InvoiceResponse{}, err
		}
	}
	dueDate := issueDate.AddDate(0, 0, s.defaultDueDays)
	if strings.TrimSpace(req.DueDate) != "" {
		if dueDate, err = parseDate("due_date", req.DueDate); err != nil {
			return InvoiceResponse{}, err
		}
	}
	if err := validateDates(issueDate, dueDate); err != nil {
		return InvoiceResponse{}, err
	}

	project, err := s.projectRepo.FindByID(ctx, companyID, projectID)
	if err != nil {
		return InvoiceResponse{}, lookupErr(err, "Project")
	}

	return s.create(ctx, companyID, actorID, invoiceDraft{
		clientID:  project.ClientID,
		projectID: &project.ID,
		items:     items,
		issueDate: issueDate,
		dueDate:   dueDate,
		notes:     req.Notes,
	})
}

func (s *invoiceService) create(ctx context.Context, companyID, actorID uuid.UUID, draft invoiceDraft) (InvoiceResponse, error) {
	var invoice model.Invoice
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkParties(txCtx, companyID, draft.clientID, draft.projectID); err != nil {
			return err
		}

		var err error
		if strings.TrimSpace(draft.number) != "" {
			draft.number, err = s.numbers.Reserve(txCtx, companyID, draft.number)
		} else {
			draft.number, err = s.numbers.Next(txCtx, companyID)
		}
		if err != nil {
			return err
		}

		total := model.SumItems(draft.items)
		invoice = model.Invoice{
			CompanyID:     companyID,
			InvoiceNumber: draft.number,
			ClientID:      draft.clientID,
			ProjectID:     draft.projectID,
			IssueDate:     draft.issueDate,
			DueDate:       draft.dueDate,
			TotalAmount:   total,
			Status:        ReconcileStatus(total, draft.dueDate, nil, s.now()),
			Notes:         draft.notes,
			CreatedBy:     actorPtr(actorID),
			Items:         draft.items,
		}
		if err := s.invoiceRepo.Create(txCtx, &invoice); err != nil {
			return writeErr(err, "invoice number "+draft.number+" already exists")
		}

		return recordAudit(txCtx, s.auditRepo, companyID, actorID, model.ActionCreateInvoice,
			invoice.ID.String(), invoice.InvoiceNumber, map[string]interface{}{
				"client_id":    invoice.ClientID.String(),
				"total_amount": invoice.TotalAmount.StringFixed(2),
				"status":       invoice.Status,
			})
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	metrics.RecordInvoiceCreated()
	logger.FromContext(ctx).Info("Invoice created",
		zap.String("company_id", companyID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total_amount", invoice.TotalAmount.StringFixed(2)),
	)

	resp, err := s.load(ctx, companyID, invoice.ID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	s.publisher.Publish(companyID, EventInvoiceCreated, resp)
	return resp, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, companyID uuid.UUID, id string) (InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return s.load(ctx, companyID, invoiceID)
}

func (s *invoiceService) ListInvoices(ctx context.Context, companyID uuid.UUID, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)

	repoFilter := repository.InvoiceListFilter{
		Status: filter.Status,
		Search: filter.Search,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}
	if filter.ClientID != "" {
		clientID, err := parseID("client_id", filter.ClientID)
		if err != nil {
			return nil, 0, err
		}
		repoFilter.ClientID = &clientID
	}
	if filter.ProjectID != "" {
		projectID, err := parseID("project_id", filter.ProjectID)
		if err != nil {
			return nil, 0, err
		}
		repoFilter.ProjectID = &projectID
	}

	invoices, total, err := s.invoiceRepo.List(ctx, companyID, repoFilter)
	if err != nil {
		return nil, 0, apperror.Database(err)
	}

	paid, err := s.paidByInvoice(ctx, companyID, invoices)
	if err != nil {
		return nil, 0, err
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		inv.Status = effectiveStatus(inv, paid[inv.ID], s.now())
		result = append(result, toInvoiceResponse(inv, paid[inv.ID]))
	}
	return result, total, nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string, req UpdateInvoiceRequest) (InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}

	var items []model.InvoiceItem
	if req.Items != nil {
		if items, err = buildItems(req.Items); err != nil {
			return InvoiceResponse{}, err
		}
	}

	var result ReconcileResult
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, companyID, invoiceID)
		if err != nil {
			return lookupErr(err, "Invoice")
		}

		if invoice.Status == model.InvoiceStatusCancelled {
			return apperror.InvalidState("cannot edit a cancelled invoice")
		}
		if items != nil && invoice.Status == model.InvoiceStatusPaid {
			return apperror.InvalidState("cannot change the items of a paid invoice")
		}

		changes := map[string]interface{}{}
		if req.ClientID != nil {
			clientID, err := parseID("client_id", *req.ClientID)
			if err != nil {
				return err
			}
			invoice.ClientID = clientID
			changes["client_id"] = clientID.String()
		}
		if req.ProjectID != nil {
			if strings.TrimSpace(*req.ProjectID) == "" {
				invoice.ProjectID = nil
			} else {
				projectID, err := parseID("project_id", *req.ProjectID)
				if err != nil {
					return err
				}
				invoice.ProjectID = &projectID
			}
			changes["project_id"] = *req.ProjectID
		}
		if req.ClientID != nil || req.ProjectID != nil {
			if err := s.checkParties(txCtx, companyID, invoice.ClientID, invoice.ProjectID); err != nil {
				return err
			}
		}
		if req.IssueDate != nil {
			if invoice.IssueDate, err = parseDate("issue_date", *req.IssueDate); err != nil {
				return err
			}
			changes["issue_date"] = *req.IssueDate
		}
		if req.DueDate != nil {
			if invoice.DueDate, err = parseDate("due_date", *req.DueDate); err != nil {
				return err
			}
			changes["due_date"] = *req.DueDate
		}
		if err := validateDates(invoice.IssueDate, invoice.DueDate); err != nil {
			return err
		}
		if req.Notes != nil {
			invoice.Notes = *req.Notes
			changes["notes"] = true
		}

		if items != nil {
			if err := s.invoiceRepo.ReplaceItems(txCtx, invoice.ID, items); err != nil {
				return apperror.Database(err)
			}
			changes["previous_total"] = invoice.TotalAmount.StringFixed(2)
			invoice.TotalAmount = model.SumItems(items)
			changes["total_amount"] = invoice.TotalAmount.StringFixed(2)
		}

		if err := s.invoiceRepo.Update(txCtx, invoice); err != nil {
			return apperror.Database(err)
		}
		if err := recordAudit(txCtx, s.auditRepo, companyID, actorID, model.ActionUpdateInvoice,
			invoice.ID.String(), invoice.InvoiceNumber, changes); err != nil {
			return err
		}

		result, err = s.reconciler.apply(txCtx, companyID, invoice.ID, actorID)
		return err
	})
	if err != nil {
		return InvoiceResponse{}, err
	}
	s.reconciler.announce(ctx, result)

	resp, err := s.load(ctx, companyID, invoiceID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	s.publisher.Publish(companyID, EventInvoiceUpdated, resp)
	return resp, nil
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) error {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return err
	}

	var number string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, companyID, invoiceID)
		if err != nil {
			return lookupErr(err, "Invoice")
		}
		number = invoice.InvoiceNumber

		if err := s.ensureNoApprovedPayments(txCtx, companyID, invoiceID, "deleted"); err != nil {
			return err
		}

		if err := s.paymentRepo.DeleteByInvoice(txCtx, companyID, invoiceID); err != nil {
			return apperror.Database(err)
		}
		if err := s.invoiceRepo.Delete(txCtx, companyID, invoiceID); err != nil {
			return apperror.Database(err)
		}

		return recordAudit(txCtx, s.auditRepo, companyID, actorID, model.ActionDeleteInvoice,
			invoiceID.String(), invoice.InvoiceNumber, map[string]interface{}{
				"total_amount": invoice.TotalAmount.StringFixed(2),
				"status":       invoice.Status,
			})
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Info("Invoice deleted",
		zap.String("company_id", companyID.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("invoice_number", number),
	)
	s.publisher.Publish(companyID, EventInvoiceDeleted, map[string]string{
		"id":             invoiceID.String(),
		"invoice_number": number,
	})
	return nil
}

func (s *invoiceService) CancelInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) (InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}

	var previous string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, companyID, invoiceID)
		if err != nil {
			return lookupErr(err, "Invoice")
		}
		if invoice.Status == model.InvoiceStatusCancelled {
			return apperror.InvalidState("invoice %s is already cancelled", invoice.InvoiceNumber)
		}
		previous = invoice.Status

		if err := s.ensureNoApprovedPayments(txCtx, companyID, invoiceID, "cancelled"); err != nil {
			return err
		}

		cancelled, err := s.paymentRepo.CancelPendingByInvoice(txCtx, companyID, invoiceID)
		if err != nil {
			return apperror.Database(err)
		}
		if err := s.invoiceRepo.UpdateStatus(txCtx, companyID, invoiceID, model.InvoiceStatusCancelled); err != nil {
			return apperror.Database(err)
		}

		return recordAudit(txCtx, s.auditRepo, companyID, actorID, model.ActionCancelInvoice,
			invoiceID.String(), invoice.InvoiceNumber, map[string]interface{}{
				"from":                       previous,
				"cancelled_pending_payments": cancelled,
			})
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	metrics.RecordStatusTransition(previous, model.InvoiceStatusCancelled)
	resp, err := s.load(ctx, companyID, invoiceID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	logger.FromContext(ctx).Info("Invoice cancelled",
		zap.String("company_id", companyID.String()),
		zap.String("invoice_number", resp.InvoiceNumber),
		zap.String("from", previous),
	)
	s.publisher.Publish(companyID, EventInvoiceCancelled, resp)
	return resp, nil
}

// RenewInvoice clones items and notes into a new invoice for the next billing period.
// The term length (due minus issue) is preserved and payments are not carried over.
func (s *invoiceService) RenewInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) (InvoiceResponse, error) {
	sourceID, err := parseID("invoice id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}

	var renewed model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		source, err := s.invoiceRepo.FindByID(txCtx, companyID, sourceID)
		if err != nil {
			return lookupErr(err, "Invoice")
		}

		number, err := s.numbers.Next(txCtx, companyID)
		if err != nil {
			return err
		}

		issueDate, dueDate := renewalPeriod(source.IssueDate, source.DueDate, s.now())
		items := make([]model.InvoiceItem, 0, len(source.Items))
		for i, it := range source.Items {
			items = append(items, model.InvoiceItem{
				Description: it.Description,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
				Total:       model.LineTotal(it.Quantity, it.UnitPrice),
				Position:    i,
			})
		}
		total := model.SumItems(items)

		renewed = model.Invoice{
			CompanyID:     companyID,
			InvoiceNumber: number,
			ClientID:      source.ClientID,
			ProjectID:     source.ProjectID,
			IssueDate:     issueDate,
			DueDate:       dueDate,
			TotalAmount:   total,
			Status:        ReconcileStatus(total, dueDate, nil, s.now()),
			Notes:         source.Notes,
			RenewedFromID: &source.ID,
			CreatedBy:     actorPtr(actorID),
			Items:         items,
		}
		if err := s.invoiceRepo.Create(txCtx, &renewed); err != nil {
			return writeErr(err, "invoice number "+number+" already exists")
		}

		return recordAudit(txCtx, s.auditRepo, companyID, actorID, model.ActionRenewInvoice,
			renewed.ID.String(), renewed.InvoiceNumber, map[string]interface{}{
				"renewed_from":        source.ID.String(),
				"renewed_from_number": source.InvoiceNumber,
			})
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	metrics.RecordInvoiceCreated()
	logger.FromContext(ctx).Info("Invoice renewed",
		zap.String("company_id", companyID.String()),
		zap.String("source_id", sourceID.String()),
		zap.String("invoice_number", renewed.InvoiceNumber),
	)

	resp, err := s.load(ctx, companyID, renewed.ID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	s.publisher.Publish(companyID, EventInvoiceRenewed, resp)
	return resp, nil
}

// ReconcileInvoice recomputes the status on demand, e.g. after the due date has passed.
func (s *invoiceService) ReconcileInvoice(ctx context.Context, companyID, actorID uuid.UUID, id string) (InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if _, err := s.reconciler.Reconcile(ctx, companyID, invoiceID, actorID); err != nil {
		return InvoiceResponse{}, err
	}
	return s.load(ctx, companyID, invoiceID)
}

// --- Helpers ---

// renewalPeriod keeps the source's term. The new period starts now, or one term after
// the source when the clock has not moved past the source's issue date.
func renewalPeriod(sourceIssue, sourceDue, now time.Time) (time.Time, time.Time) {
	term := sourceDue.Sub(sourceIssue)
	if term < 0 {
		term = 0
	}

	issue := now
	if !now.After(sourceIssue) {
		offset := term
		if offset < 24*time.Hour {
			offset = 24 * time.Hour
		}
		issue = sourceIssue.Add(offset)
	}
	return issue, issue.Add(term)
}

func (s *invoiceService) checkParties(ctx context.Context, companyID, clientID uuid.UUID, projectID *uuid.UUID) error {
	if _, err := s.clientRepo.FindByID(ctx, companyID, clientID); err != nil {
		return lookupErr(err, "Client")
	}
	if projectID == nil {
		return nil
	}
	project, err := s.projectRepo.FindByID(ctx, companyID, *projectID)
	if err != nil {
		return lookupErr(err, "Project")
	}
	if project.ClientID != clientID {
		return apperror.Validation("project does not belong to the invoice client").
			WithDetails(map[string]interface{}{"field": "project_id"})
	}
	return nil
}

func (s *invoiceService) ensureNoApprovedPayments(ctx context.Context, companyID, invoiceID uuid.UUID, verb string) error {
	approved, err := s.paymentRepo.CountByInvoiceAndStatus(ctx, companyID, invoiceID, model.PaymentStatusApproved)
	if err != nil {
		return apperror.Database(err)
	}
	if approved > 0 {
		return apperror.Conflict("invoice has %d approved payment(s) and cannot be %s", approved, verb).
			WithDetails(map[string]interface{}{"approved_payments": approved})
	}
	return nil
}

// load reads an invoice with its items and approved-payment total, showing its effective status.
func (s *invoiceService) load(ctx context.Context, companyID, invoiceID uuid.UUID) (InvoiceResponse, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, companyID, invoiceID)
	if err != nil {
		return InvoiceResponse{}, lookupErr(err, "Invoice")
	}
	payments, err := s.paymentRepo.ListByInvoice(ctx, companyID, invoiceID)
	if err != nil {
		return InvoiceResponse{}, apperror.Database(err)
	}
	paid := model.SumApproved(payments)
	invoice.Status = effectiveStatus(*invoice, paid, s.now())
	return toInvoiceResponse(*invoice, paid), nil
}

func (s *invoiceService) paidByInvoice(ctx context.Context, companyID uuid.UUID, invoices []model.Invoice) (map[uuid.UUID]decimal.Decimal, error) {
	ids := make([]uuid.UUID, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	payments, err := s.paymentRepo.ListByInvoices(ctx, companyID, ids)
	if err != nil {
		return nil, apperror.Database(err)
	}
	return approvedTotals(payments), nil
}

func approvedTotals(payments []model.Payment) map[uuid.UUID]decimal.Decimal {
	paid := make(map[uuid.UUID]decimal.Decimal)
	for _, p := range payments {
		if p.Status == model.PaymentStatusApproved {
			paid[p.InvoiceID] = paid[p.InvoiceID].Add(p.Amount)
		}
	}
	return paid
}

func buildItems(reqs []InvoiceItemRequest) ([]model.InvoiceItem, error) {
	if len(reqs) == 0 {
		return nil, apperror.Validation("invoice must have at least one item").
			WithDetails(map[string]interface{}{"field": "items"})
	}

	items := make([]model.InvoiceItem, 0, len(reqs))
	for i, r := range reqs {
		description := strings.TrimSpace(r.Description)
		if description == "" {
			return nil, apperror.Validation("items[%d].description is required", i)
		}
		qty, err := parsePositiveAmount("quantity", r.Quantity)
		if err != nil {
			return nil, apperror.Validation("items[%d]: %s", i, apperror.FromError(err).Message)
		}
		price, err := parsePositiveAmount("unit_price", r.UnitPrice)
		if err != nil {
			return nil, apperror.Validation("items[%d]: %s", i, apperror.FromError(err).Message)
		}
		total := model.LineTotal(qty, price)
		if !total.IsPositive() || total.GreaterThanOrEqual(model.MaxMoney) {
			return nil, apperror.Validation("items[%d]: total is out of range", i).
				WithDetails(map[string]interface{}{"field": "items", "index": i})
		}
		items = append(items, model.InvoiceItem{
			Description: description,
			Quantity:    qty,
			UnitPrice:   price,
			Total:       total,
			Position:    i,
		})
	}
	if model.SumItems(items).GreaterThanOrEqual(model.MaxMoney) {
		return nil, apperror.Validation("invoice total is out of range").
			WithDetails(map[string]interface{}{"field": "items"})
	}
	return items, nil
}

func validateDates(issue, due time.Time) error {
	if due.Before(issue) {
		return apperror.Validation("due_date must not be before issue_date").
			WithDetails(map[string]interface{}{"field": "due_date"})
	}
	return nil
}

// --- Mapping ---

func toInvoiceResponse(inv model.Invoice, paid decimal.Decimal) InvoiceResponse {
	due := inv.TotalAmount.Sub(paid)
	credit := decimal.Zero
	if due.IsNegative() {
		credit = due.Neg()
		due = decimal.Zero
	}

	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		ClientID:      inv.ClientID.String(),
		ProjectID:     uuidString(inv.ProjectID),
		IssueDate:     inv.IssueDate.Format(time.RFC3339),
		DueDate:       inv.DueDate.Format(time.RFC3339),
		TotalAmount:   inv.TotalAmount.StringFixed(2),
		PaidAmount:    paid.StringFixed(2),
		DueAmount:     due.StringFixed(2),
		CreditAmount:  credit.StringFixed(2),
		Status:        inv.Status,
		Notes:         inv.Notes,
		RenewedFromID: uuidString(inv.RenewedFromID),
		Items:         make([]InvoiceItemResponse, 0, len(inv.Items)),
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.Format(time.RFC3339),
	}
	if inv.Client != nil {
		resp.ClientName = inv.Client.Name
	}

	for _, it := range inv.Items {
		resp.Items = append(resp.Items, InvoiceItemResponse{
			ID:          it.ID.String(),
			Description: it.Description,
			Quantity:    it.Quantity.String(),
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Total:       it.Total.StringFixed(2),
			Position:    it.Position,
		})
	}

	return resp
}
