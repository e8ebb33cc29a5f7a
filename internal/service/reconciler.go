package service

import (
	"context"
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

// ReconcileStatus derives an invoice status from its total, due date and payments.
// Only APPROVED payments count. The result depends on nothing but its arguments.
func ReconcileStatus(total decimal.Decimal, dueDate time.Time, payments []model.Payment, now time.Time) string {
	return statusFor(total, model.SumApproved(payments), dueDate, now)
}

func statusFor(total, paid decimal.Decimal, dueDate time.Time, now time.Time) string {
	if paid.GreaterThanOrEqual(total) {
		return model.InvoiceStatusPaid
	}
	if dueDate.Before(now) {
		return model.InvoiceStatusOverdue
	}
	return model.InvoiceStatusUnpaid
}

// effectiveStatus is the status shown on reads: the status the next reconciliation
// would write, so a passed due date reads OVERDUE before any sweep runs.
func effectiveStatus(inv model.Invoice, paid decimal.Decimal, now time.Time) string {
	if inv.IsTerminal() {
		return inv.Status
	}
	return statusFor(inv.TotalAmount, paid, inv.DueDate, now)
}

// ReconcileResult describes one reconciliation. From equals To when nothing changed.
type ReconcileResult struct {
	CompanyID     uuid.UUID `json:"company_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	From          string    `json:"from"`
	To            string    `json:"to"`
}

func (r ReconcileResult) Changed() bool {
	return r.From != r.To
}

// Reconciler writes ReconcileStatus back to the invoice row.
type Reconciler struct {
	invoiceRepo repository.InvoiceRepository
	paymentRepo repository.PaymentRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	publisher   EventPublisher
	now         Clock
}

func NewReconciler(
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	publisher EventPublisher,
	now Clock,
) *Reconciler {
	return &Reconciler{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		publisher:   publisherOrNoop(publisher),
		now:         clockOrNow(now),
	}
}

// Reconcile recomputes one invoice's status in its own transaction, or in the caller's
// when ctx already carries one.
func (r *Reconciler) Reconcile(ctx context.Context, companyID, invoiceID, actorID uuid.UUID) (ReconcileResult, error) {
	var result ReconcileResult
	err := r.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var applyErr error
		result, applyErr = r.apply(txCtx, companyID, invoiceID, actorID)
		return applyErr
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	r.announce(ctx, result)
	return result, nil
}

// ReconcileTenant sweeps the open invoices of one company and returns how many changed.
func (r *Reconciler) ReconcileTenant(ctx context.Context, companyID uuid.UUID) (int, error) {
	return r.sweep(ctx, &companyID)
}

// ReconcileAll sweeps the open invoices of every company.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	return r.sweep(ctx, nil)
}

func (r *Reconciler) sweep(ctx context.Context, companyID *uuid.UUID) (int, error) {
	open, err := r.invoiceRepo.ListOpen(ctx, companyID)
	if err != nil {
		return 0, apperror.Database(err)
	}

	changed := 0
	for _, inv := range open {
		res, err := r.Reconcile(ctx, inv.CompanyID, inv.ID, uuid.Nil)
		if err != nil {
			return changed, err
		}
		if res.Changed() {
			changed++
		}
	}
	return changed, nil
}

// apply locks the invoice row before reading payments, so concurrent payment writers
// for the same invoice serialise here. ctx must carry the transaction.
func (r *Reconciler) apply(txCtx context.Context, companyID, invoiceID, actorID uuid.UUID) (ReconcileResult, error) {
	inv, err := r.invoiceRepo.FindByIDForUpdate(txCtx, companyID, invoiceID)
	if err != nil {
		return ReconcileResult{}, lookupErr(err, "Invoice")
	}

	result := ReconcileResult{
		CompanyID:     companyID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		From:          inv.Status,
		To:            inv.Status,
	}
	if inv.IsTerminal() {
		return result, nil
	}

	payments, err := r.paymentRepo.ListByInvoice(txCtx, companyID, invoiceID)
	if err != nil {
		return ReconcileResult{}, apperror.Database(err)
	}

	result.To = ReconcileStatus(inv.TotalAmount, inv.DueDate, payments, r.now())
	if !result.Changed() {
		return result, nil
	}

	if err := r.invoiceRepo.UpdateStatus(txCtx, companyID, invoiceID, result.To); err != nil {
		return ReconcileResult{}, apperror.Database(err)
	}
	if err := recordAudit(txCtx, r.auditRepo, companyID, actorID, model.ActionReconcileInvoice,
		inv.ID.String(), inv.InvoiceNumber, map[string]interface{}{
			"from":        result.From,
			"to":          result.To,
			"paid_amount": model.SumApproved(payments).StringFixed(2),
		}); err != nil {
		return ReconcileResult{}, err
	}
	return result, nil
}

// announce reports a committed status change. Callers invoke it after their transaction ends.
func (r *Reconciler) announce(ctx context.Context, result ReconcileResult) {
	if !result.Changed() {
		return
	}
	metrics.RecordStatusTransition(result.From, result.To)
	logger.FromContext(ctx).Info("Invoice status changed",
		zap.String("company_id", result.CompanyID.String()),
		zap.String("invoice_id", result.InvoiceID.String()),
		zap.String("invoice_number", result.InvoiceNumber),
		zap.String("from", result.From),
		zap.String("to", result.To),
	)
	r.publisher.Publish(result.CompanyID, EventInvoiceStatusChanged, result)
}
