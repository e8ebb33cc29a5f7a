package service

import (
	"context"
	"fmt"
	"strings"

	"crm-backend/internal/apperror"
	"crm-backend/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultInvoicePrefix   = "INV"
	maxInvoiceNumberLength = 40
)

// FormatInvoiceNumber renders e.g. "INV-2025-00042".
func FormatInvoiceNumber(prefix string, year int, seq int64) string {
	if prefix == "" {
		prefix = defaultInvoicePrefix
	}
	return fmt.Sprintf("%s-%04d-%05d", prefix, year, seq)
}

// InvoiceNumberGenerator allocates per-company invoice numbers from a counter row.
// Numbers are monotonic per company and never reused, even when an invoice is deleted.
type InvoiceNumberGenerator struct {
	companyRepo  repository.CompanyRepository
	sequenceRepo repository.SequenceRepository
	invoiceRepo  repository.InvoiceRepository
	txManager    repository.TransactionManager
	now          Clock
}

func NewInvoiceNumberGenerator(
	companyRepo repository.CompanyRepository,
	sequenceRepo repository.SequenceRepository,
	invoiceRepo repository.InvoiceRepository,
	txManager repository.TransactionManager,
	now Clock,
) *InvoiceNumberGenerator {
	return &InvoiceNumberGenerator{
		companyRepo:  companyRepo,
		sequenceRepo: sequenceRepo,
		invoiceRepo:  invoiceRepo,
		txManager:    txManager,
		now:          clockOrNow(now),
	}
}

// Next allocates the company's next number. When ctx carries a transaction the counter
// row stays locked until that transaction ends, and a rollback returns the value.
func (g *InvoiceNumberGenerator) Next(ctx context.Context, companyID uuid.UUID) (string, error) {
	var number string
	err := g.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		company, err := g.companyRepo.FindByID(txCtx, companyID)
		if err != nil {
			return lookupErr(err, "Company")
		}

		seq, err := g.sequenceRepo.Next(txCtx, companyID)
		if err != nil {
			return apperror.Database(err)
		}

		number = FormatInvoiceNumber(company.InvoicePrefix, g.now().Year(), seq)
		return nil
	})
	return number, err
}

// Reserve checks a caller-supplied number. The unique index still guards the insert.
func (g *InvoiceNumberGenerator) Reserve(ctx context.Context, companyID uuid.UUID, number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", apperror.Validation("invoice_number must not be blank")
	}
	if len(number) > maxInvoiceNumberLength {
		return "", apperror.Validation("invoice_number must have at most %d characters", maxInvoiceNumberLength)
	}

	exists, err := g.invoiceRepo.NumberExists(ctx, companyID, number)
	if err != nil {
		return "", apperror.Database(err)
	}
	if exists {
		return "", apperror.Conflict("invoice number %s already exists", number)
	}
	return number, nil
}
