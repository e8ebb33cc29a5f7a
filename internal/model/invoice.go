package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus enum constants
const (
	InvoiceStatusUnpaid    = "UNPAID"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusOverdue   = "OVERDUE"
	InvoiceStatusCancelled = "CANCELLED"
)

// Invoice is a tenant-scoped bill to a client, optionally tied to a project.
// TotalAmount is always the sum of its items; Status is derived from approved payments
// by the reconciler, except CANCELLED which is terminal.
type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_invoices_company_number,priority:1;index" json:"company_id"`
	InvoiceNumber string          `gorm:"type:varchar(40);not null;uniqueIndex:ux_invoices_company_number,priority:2" json:"invoice_number"`
	ClientID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client        *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	ProjectID     *uuid.UUID      `gorm:"type:uuid;index" json:"project_id"`
	Project       *Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	IssueDate     time.Time       `gorm:"not null" json:"issue_date"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	Status        string          `gorm:"type:varchar(20);not null;default:'UNPAID';index" json:"status"`
	Notes         string          `gorm:"type:text" json:"notes"`
	RenewedFromID *uuid.UUID      `gorm:"type:uuid;index" json:"renewed_from_id"`
	CreatedBy     *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	Items         []InvoiceItem   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// IsTerminal reports whether the invoice no longer takes part in reconciliation.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceStatusCancelled
}

// InvoiceItem is a single billed line. Total is quantity * unit price.
type InvoiceItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Description string          `gorm:"type:varchar(500);not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Total       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	Position    int             `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (it *InvoiceItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&it.ID)
	return nil
}

// Money and quantity columns are decimal(18,4).
const MoneyScale = 4

// MaxMoney is the exclusive upper bound of a decimal(18,4) column.
var MaxMoney = decimal.New(1, 18-MoneyScale)

// LineTotal is quantity * unit price rounded to the stored scale.
func LineTotal(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Round(MoneyScale)
}

// SumItems returns the invoice total for a set of items.
func SumItems(items []InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total)
	}
	return total
}

// InvoiceSequence is the per-tenant invoice number counter.
type InvoiceSequence struct {
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey" json:"company_id"`
	LastValue int64     `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt time.Time `json:"updated_at"`
}
