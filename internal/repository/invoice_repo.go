package repository

import (
	"context"
	"strings"

	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceListFilter narrows List. Empty fields are ignored.
type InvoiceListFilter struct {
	Status    string
	ClientID  *uuid.UUID
	ProjectID *uuid.UUID
	Search    string // partial match on invoice_number
	Page      int
	Limit     int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Invoice, error)
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, companyID uuid.UUID, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	ListByProject(ctx context.Context, companyID, projectID uuid.UUID) ([]model.Invoice, error)
	ListByClient(ctx context.Context, companyID, clientID uuid.UUID) ([]model.Invoice, error)
	ListOpen(ctx context.Context, companyID *uuid.UUID) ([]model.Invoice, error)
	Update(ctx context.Context, invoice *model.Invoice) error
	UpdateStatus(ctx context.Context, companyID, id uuid.UUID, status string) error
	ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error
	Delete(ctx context.Context, companyID, id uuid.UUID) error
	NumberExists(ctx context.Context, companyID uuid.UUID, number string) (bool, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit("Client", "Project").Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).
		Preload("Items", itemsOrder).
		Preload("Client").
		First(&invoice, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := forUpdate(GetDB(ctx, r.db)).
		First(&invoice, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, companyID uuid.UUID, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("company_id = ?", companyID)
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.ClientID != nil {
			q = q.Where("client_id = ?", *filter.ClientID)
		}
		if filter.ProjectID != nil {
			q = q.Where("project_id = ?", *filter.ProjectID)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(invoice_number) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
		}
		return q
	}

	if err := db.Model(&model.Invoice{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(scope).
		Preload("Items", itemsOrder).
		Preload("Client").
		Order("created_at desc").
		Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

func (r *invoiceRepository) ListByProject(ctx context.Context, companyID, projectID uuid.UUID) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Items", itemsOrder).
		Where("company_id = ? AND project_id = ?", companyID, projectID).
		Order("issue_date desc").
		Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) ListByClient(ctx context.Context, companyID, clientID uuid.UUID) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Items", itemsOrder).
		Where("company_id = ? AND client_id = ?", companyID, clientID).
		Order("issue_date desc").
		Find(&invoices).Error
	return invoices, err
}

// ListOpen returns UNPAID and OVERDUE invoices, for one tenant or all when companyID is nil.
func (r *invoiceRepository) ListOpen(ctx context.Context, companyID *uuid.UUID) ([]model.Invoice, error) {
	var invoices []model.Invoice
	q := GetDB(ctx, r.db).Where("status IN ?", []string{model.InvoiceStatusUnpaid, model.InvoiceStatusOverdue})
	if companyID != nil {
		q = q.Where("company_id = ?", *companyID)
	}
	err := q.Order("company_id, due_date").Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Model(invoice).
		Where("company_id = ?", invoice.CompanyID).
		Select("client_id", "project_id", "issue_date", "due_date", "total_amount", "status", "notes").
		Updates(invoice).Error
}

func (r *invoiceRepository) UpdateStatus(ctx context.Context, companyID, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ? AND company_id = ?", id, companyID).
		Update("status", status).Error
}

func (r *invoiceRepository) ReplaceItems(ctx context.Context, invoiceID uuid.UUID, items []model.InvoiceItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("invoice_id = ?", invoiceID).Delete(&model.InvoiceItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].InvoiceID = invoiceID
	}
	return db.Create(&items).Error
}

func (r *invoiceRepository) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("invoice_id = ?", id).Delete(&model.InvoiceItem{}).Error; err != nil {
		return err
	}
	return db.Where("id = ? AND company_id = ?", id, companyID).Delete(&model.Invoice{}).Error
}

func (r *invoiceRepository) NumberExists(ctx context.Context, companyID uuid.UUID, number string) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("company_id = ? AND invoice_number = ?", companyID, number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func itemsOrder(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}
