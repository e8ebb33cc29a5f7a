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
	"go.uber.org/zap"
)

// --- DTOs ---

type CreatePaymentRequest struct {
	InvoiceID     string `json:"invoice_id" binding:"required,uuid"`
	GatewayID     string `json:"gateway_id" binding:"required,uuid"`
	Amount        string `json:"amount" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required,max=100"`
	PaidBy        string `json:"paid_by" binding:"max=255"`
	PaidAt        string `json:"paid_at"` // Optional, defaults to now
	Notes         string `json:"notes"`
}

type ApprovePaymentRequest struct {
	AdminNotes string `json:"admin_notes"`
}

type RejectPaymentRequest struct {
	Reason string `json:"reason"`
}

type PaymentFilter struct {
	Status    string // PENDING, APPROVED, REJECTED, CANCELLED or empty for all
	InvoiceID string
	GatewayID string
	Page      int
	Limit     int
}

type PaymentResponse struct {
	ID              string  `json:"id"`
	InvoiceID       string  `json:"invoice_id"`
	InvoiceNumber   string  `json:"invoice_number,omitempty"`
	InvoiceStatus   string  `json:"invoice_status,omitempty"`
	GatewayID       string  `json:"gateway_id"`
	GatewayName     string  `json:"gateway_name,omitempty"`
	Amount          string  `json:"amount"`
	TransactionID   string  `json:"transaction_id"`
	Status          string  `json:"status"`
	PaidBy          string  `json:"paid_by"`
	PaidAt          string  `json:"paid_at"`
	VerifiedAt      *string `json:"verified_at"`
	VerifiedBy      *string `json:"verified_by"`
	AdminNotes      string  `json:"admin_notes"`
	RejectionReason string  `json:"rejection_reason"`
	CreatedAt       string  `json:"created_at"`
}

// --- Interface ---

type PaymentService interface {
	CreatePayment(ctx context.Context, companyID, actorID uuid.UUID, req CreatePaymentRequest) (PaymentResponse, error)
	ApprovePayment(ctx context.Context, companyID, actorID uuid.UUID, id string, req ApprovePaymentRequest) (PaymentResponse, error)
	RejectPayment(ctx context.Context, companyID, actorID uuid.UUID, id string, req RejectPaymentRequest) (PaymentResponse, error)
	GetPayment(ctx context.Context, companyID uuid.UUID, id string) (PaymentResponse, error)
	ListPayments(ctx context.Context, companyID uuid.UUID, filter PaymentFilter) ([]PaymentResponse, int64, error)
	GetPaymentsByInvoice(ctx context.Context, companyID uuid.UUID, invoiceID string) ([]PaymentResponse, error)
}

type paymentService struct {
	paymentRepo repository.PaymentRepository
	invoiceRepo repository.InvoiceRepository
	gatewayRepo repository.GatewayRepository
	auditRepo   repository.AuditRepository
	reconciler  *Reconciler
	txManager   repository.TransactionManager
	publisher   EventPublisher
	now         Clock
}

func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	invoiceRepo repository.InvoiceRepository,
	gatewayRepo repository.GatewayRepository,
	auditRepo repository.AuditRepository,
	reconciler *Reconciler,
	txManager repository.TransactionManager,
	publisher EventPublisher,
	now Clock,
) PaymentService {
	return &paymentService{
		paymentRepo: paymentRepo,
		invoiceRepo: invoiceRepo,
		gatewayRepo: gatewayRepo,
		auditRepo:   auditRepo,
		reconciler:  reconciler,
		txManager:   txManager,
		publisher:   publisherOrNoop(publisher),
		now:         clockOrNow(now),
	}
}

// --- Implementation ---

// CreatePayment records a payment against an open invoice. Payments through an
// auto-approve gateway are approved immediately and reconciled in the same transaction.
func (s *paymentService) CreatePayment(ctx context.Context, companyID, actorID uuid.UUID, req CreatePaymentRequest) (PaymentResponse, error) {
	amount, err := parsePositiveAmount("amount", req.Amount)
	if err != nil {
		return PaymentResponse{}, err
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return PaymentResponse{}, apperror.Validation("transaction_id is required").
			WithDetails(map[string]interface{}{"field": "transaction_id"})
	}
	invoiceID, err := parseID("invoice_id", req.InvoiceID)
	if err != nil {
		return PaymentResponse{}, err
	}
	gatewayID, err := parseID("gateway_id", req.GatewayID)
	if err != nil {
		return PaymentResponse{}, err
	}
	paidAt := s.now()
	if strings.TrimSpace(req.PaidAt) != "" {
		if paidAt, err = parseDate("paid_at", req.PaidAt); err != nil {
			return PaymentResponse{}, err
		}
	}

	var (
		payment model.Payment
		result  ReconcileResult
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, companyID, invoiceID)
		if err != nil {
			return lookupErr(err, "Invoice")
		}
		switch invoice.Status {
		case model.InvoiceStatusPaid, model.InvoiceStatusCancelled:
			return apperror.InvalidState("invoice %s is %s and accepts no payments", invoice.InvoiceNumber, invoice.Status)
		}

		gateway, err := s.gatewayRepo.FindByID(txCtx, companyID, gatewayID)
		if err != nil {
			return lookupErr(err, "Payment gateway")
		}
		if !gateway.IsActive {
			return apperror.Validation("payment gateway %s is not active", gateway.Name).
				WithDetails(map[string]interface{}{"field": "gateway_id"})
		}

		payment = model.Payment{
			CompanyID:     companyID,
			InvoiceID:     invoice.ID,
			GatewayID:     gateway.ID,
			Amount:        amount,
			TransactionID: transactionID,
			Status:        model.PaymentStatusPending,
			PaidBy:        req.PaidBy,
			PaidAt:        paidAt,
			AdminNotes:    req.Notes,
			CreatedBy:     actorPtr(actorID),
		}
		if gateway.AutoApprove {
			verifiedAt := s.now()
			payment.Status = model.PaymentStatusApproved
			payment.VerifiedAt = &verifiedAt
			payment.VerifiedBy = actorPtr(actorID)
		}

		if err := s.paymentRepo.Create(txCtx, &payment); err != nil {
			return writeErr(err, "transaction "+transactionID+" is already recorded")
		}

		if err := recordAudit(txCtx, s.auditRepo, companyID, actorID, model.ActionCreatePayment,
			payment.ID.String(), invoice.InvoiceNumber, map[string]interface{}{
				"amount":         payment.Amount.StringFixed(2),
				"transaction_id": payment.TransactionID,
				"gateway":        gateway.Name,
				"status":         payment.Status,
			}); err != nil {
			return err
		}

		result, err = s.reconciler.apply(txCtx, companyID, invoice.ID, actorID)
		return err
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	metrics.RecordPayment(payment.Status)
	s.reconciler.announce(ctx, result)
	logger.FromContext(ctx).Info("Payment recorded",
		zap.String("company_id", companyID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("status", payment.Status),
	)

	resp, err := s.load(ctx, companyID, payment.ID)
	if err != nil {
		return PaymentResponse{}, err
	}
	s.publisher.Publish(companyID, EventPaymentCreated, resp)
	return resp, nil
}

func (s *paymentService) ApprovePayment(ctx context.Context, companyID, actorID uuid.UUID, id string, req ApprovePaymentRequest) (PaymentResponse, error) {
	return s.review(ctx, companyID, actorID, id, model.PaymentStatusApproved, req.AdminNotes)
}

func (s *paymentService) RejectPayment(ctx context.Context, companyID, actorID uuid.UUID, id string, req RejectPaymentRequest) (PaymentResponse, error) {
	return s.review(ctx, companyID, actorID, id, model.PaymentStatusRejected, req.Reason)
}

// review moves a PENDING payment to APPROVED or REJECTED and reconciles its invoice.
func (s *paymentService) review(ctx context.Context, companyID, actorID uuid.UUID, id, status, note string) (PaymentResponse, error) {
	paymentID, err := parseID("payment id", id)
	if err != nil {
		return PaymentResponse{}, err
	}

	var result ReconcileResult
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(txCtx, companyID, paymentID)
		if err != nil {
			return lookupErr(err, "Payment")
		}
		if payment.Status != model.PaymentStatusPending {
			return apperror.InvalidState("payment is already %s", payment.Status)
		}

		verifiedAt := s.now()
		payment.Status = status
		payment.VerifiedAt = &verifiedAt
		payment.VerifiedBy = actorPtr(actorID)

		action := model.ActionApprovePayment
		if status == model.PaymentStatusApproved {
			if note != "" {
				payment.AdminNotes = note
			}
		} else {
			action = model.ActionRejectPayment
			payment.RejectionReason = note
		}

		if err := s.paymentRepo.Update(txCtx, payment); err != nil {
			return apperror.Database(err)
		}
		if err := recordAudit(txCtx, s.auditRepo, companyID, actorID, action,
			payment.ID.String(), payment.TransactionID, map[string]interface{}{
				"invoice_id": payment.InvoiceID.String(),
				"amount":     payment.Amount.StringFixed(2),
				"note":       note,
			}); err != nil {
			return err
		}

		result, err = s.reconciler.apply(txCtx, companyID, payment.InvoiceID, actorID)
		return err
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	metrics.RecordPayment(status)
	s.reconciler.announce(ctx, result)
	logger.FromContext(ctx).Info("Payment reviewed",
		zap.String("company_id", companyID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.String("status", status),
	)

	resp, err := s.load(ctx, companyID, paymentID)
	if err != nil {
		return PaymentResponse{}, err
	}
	event := EventPaymentApproved
	if status == model.PaymentStatusRejected {
		event = EventPaymentRejected
	}
	s.publisher.Publish(companyID, event, resp)
	return resp, nil
}

func (s *paymentService) GetPayment(ctx context.Context, companyID uuid.UUID, id string) (PaymentResponse, error) {
	paymentID, err := parseID("payment id", id)
	if err != nil {
		return PaymentResponse{}, err
	}
	return s.load(ctx, companyID, paymentID)
}

func (s *paymentService) ListPayments(ctx context.Context, companyID uuid.UUID, filter PaymentFilter) ([]PaymentResponse, int64, error) {
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)

	repoFilter := repository.PaymentListFilter{
		Status: filter.Status,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}
	if filter.InvoiceID != "" {
		invoiceID, err := parseID("invoice_id", filter.InvoiceID)
		if err != nil {
			return nil, 0, err
		}
		repoFilter.InvoiceID = &invoiceID
	}
	if filter.GatewayID != "" {
		gatewayID, err := parseID("gateway_id", filter.GatewayID)
		if err != nil {
			return nil, 0, err
		}
		repoFilter.GatewayID = &gatewayID
	}

	payments, total, err := s.paymentRepo.List(ctx, companyID, repoFilter)
	if err != nil {
		return nil, 0, apperror.Database(err)
	}

	result := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		result = append(result, toPaymentResponse(p))
	}
	return result, total, nil
}

func (s *paymentService) GetPaymentsByInvoice(ctx context.Context, companyID uuid.UUID, invoiceID string) ([]PaymentResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, companyID, id)
	if err != nil {
		return nil, lookupErr(err, "Invoice")
	}

	payments, err := s.paymentRepo.ListByInvoice(ctx, companyID, id)
	if err != nil {
		return nil, apperror.Database(err)
	}

	result := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp := toPaymentResponse(p)
		resp.InvoiceNumber = invoice.InvoiceNumber
		resp.InvoiceStatus = invoice.Status
		result = append(result, resp)
	}
	return result, nil
}

func (s *paymentService) load(ctx context.Context, companyID, paymentID uuid.UUID) (PaymentResponse, error) {
	payment, err := s.paymentRepo.FindByID(ctx, companyID, paymentID)
	if err != nil {
		return PaymentResponse{}, lookupErr(err, "Payment")
	}
	return toPaymentResponse(*payment), nil
}

// --- Mapping ---

func toPaymentResponse(p model.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:              p.ID.String(),
		InvoiceID:       p.InvoiceID.String(),
		GatewayID:       p.GatewayID.String(),
		Amount:          p.Amount.StringFixed(2),
		TransactionID:   p.TransactionID,
		Status:          p.Status,
		PaidBy:          p.PaidBy,
		PaidAt:          p.PaidAt.Format(time.RFC3339),
		VerifiedAt:      timeString(p.VerifiedAt),
		VerifiedBy:      uuidString(p.VerifiedBy),
		AdminNotes:      p.AdminNotes,
		RejectionReason: p.RejectionReason,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
	if p.Invoice != nil {
		resp.InvoiceNumber = p.Invoice.InvoiceNumber
		resp.InvoiceStatus = p.Invoice.Status
	}
	if p.Gateway != nil {
		resp.GatewayName = p.Gateway.Name
	}
	return resp
}
