package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionCreateInvoice    = "CREATE_INVOICE"
	ActionUpdateInvoice    = "UPDATE_INVOICE"
	ActionDeleteInvoice    = "DELETE_INVOICE"
	ActionCancelInvoice    = "CANCEL_INVOICE"
	ActionRenewInvoice     = "RENEW_INVOICE"
	ActionReconcileInvoice = "RECONCILE_INVOICE"

	ActionCreatePayment  = "CREATE_PAYMENT"
	ActionApprovePayment = "APPROVE_PAYMENT"
	ActionRejectPayment  = "REJECT_PAYMENT"

	ActionUpdateProjectStatus = "UPDATE_PROJECT_STATUS"
)

// AuditLog tracks Who, What, and When for finance changes within a tenant
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // nil for CLI sweeps
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
