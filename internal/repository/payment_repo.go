package repository

import (
	"context"

	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentListFilter narrows List. Empty fields are ignored.
type PaymentListFilter struct {
	Status    string
	InvoiceID *uuid.UUID
	GatewayID *uuid.UUID
	Page      int
	Limit     int
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Payment, error)
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Payment, error)
	Update(ctx context.Context, payment *model.Payment) error
	List(ctx context.Context, companyID uuid.UUID, filter PaymentListFilter) ([]model.Payment, int64, error)
	ListByInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) ([]model.Payment, error)
	ListByInvoices(ctx context.Context, companyID uuid.UUID, invoiceIDs []uuid.UUID) ([]model.Payment, error)
	CountByInvoiceAndStatus(ctx context.Context, companyID, invoiceID uuid.UUID, status string) (int64, error)
	CancelPendingByInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) (int64, error)
	DeleteByInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(payment).Error
}

func (r *paymentRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := GetDB(ctx, r.db).
		Preload("Gateway").
		Preload("Invoice").
		First(&payment, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := forUpdate(GetDB(ctx, r.db)).
		First(&payment, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(payment).Error
}

func (r *paymentRepository) List(ctx context.Context, companyID uuid.UUID, filter PaymentListFilter) ([]model.Payment, int64, error) {
	var payments []model.Payment
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("company_id = ?", companyID)
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.InvoiceID != nil {
			q = q.Where("invoice_id = ?", *filter.InvoiceID)
		}
		if filter.GatewayID != nil {
			q = q.Where("gateway_id = ?", *filter.GatewayID)
		}
		return q
	}

	if err := db.Model(&model.Payment{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(scope).
		Preload("Gateway").
		Preload("Invoice").
		Order("created_at desc").
		Offset(offset).Limit(filter.Limit).
		Find(&payments).Error; err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}

func (r *paymentRepository) ListByInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	err := GetDB(ctx, r.db).
		Preload("Gateway").
		Where("company_id = ? AND invoice_id = ?", companyID, invoiceID).
		Order("created_at asc").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) ListByInvoices(ctx context.Context, companyID uuid.UUID, invoiceIDs []uuid.UUID) ([]model.Payment, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	var payments []model.Payment
	err := GetDB(ctx, r.db).
		Preload("Gateway").
		Where("company_id = ? AND invoice_id IN ?", companyID, invoiceIDs).
		Order("created_at asc").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) CountByInvoiceAndStatus(ctx context.Context, companyID, invoiceID uuid.UUID, status string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Payment{}).
		Where("company_id = ? AND invoice_id = ? AND status = ?", companyID, invoiceID, status).
		Count(&count).Error
	return count, err
}

func (r *paymentRepository) CancelPendingByInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Payment{}).
		Where("company_id = ? AND invoice_id = ? AND status = ?", companyID, invoiceID, model.PaymentStatusPending).
		Update("status", model.PaymentStatusCancelled)
	return res.RowsAffected, res.Error
}

func (r *paymentRepository) DeleteByInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Where("company_id = ? AND invoice_id = ?", companyID, invoiceID).
		Delete(&model.Payment{}).Error
}
