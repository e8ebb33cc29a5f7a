package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus enum constants
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusApproved  = "APPROVED"
	PaymentStatusRejected  = "REJECTED"
	PaymentStatusCancelled = "CANCELLED"
)

// Payment records money received against one invoice through one gateway.
// Only APPROVED payments count toward the invoice status.
type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID       uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:ux_payments_company_txn,priority:1" json:"company_id"`
	InvoiceID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Invoice         *Invoice        `gorm:"foreignKey:InvoiceID" json:"invoice,omitempty"`
	GatewayID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"gateway_id"`
	Gateway         *PaymentGateway `gorm:"foreignKey:GatewayID" json:"gateway,omitempty"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	TransactionID   string          `gorm:"type:varchar(100);not null;uniqueIndex:ux_payments_company_txn,priority:2" json:"transaction_id"`
	Status          string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	PaidBy          string          `gorm:"type:varchar(255)" json:"paid_by"`
	PaidAt          time.Time       `gorm:"not null" json:"paid_at"`
	VerifiedAt      *time.Time      `json:"verified_at"`
	VerifiedBy      *uuid.UUID      `gorm:"type:uuid" json:"verified_by"`
	AdminNotes      string          `gorm:"type:text" json:"admin_notes"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason"`
	CreatedBy       *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// SumApproved totals the amounts of approved payments.
func SumApproved(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentStatusApproved {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}
