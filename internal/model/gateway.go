package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GatewayType enum constants
const (
	GatewayTypeBank         = "BANK"
	GatewayTypeMobileWallet = "MOBILE_WALLET"
	GatewayTypeCard         = "CARD"
	GatewayTypeCash         = "CASH"
	GatewayTypeOther        = "OTHER"
)

// PaymentGateway is a channel a payment is recorded against.
// AutoApprove payments skip the manual verification step.
type PaymentGateway struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Name        string         `gorm:"type:varchar(100);not null" json:"name"`
	Type        string         `gorm:"type:varchar(20);not null" json:"type"`
	IsActive    bool           `gorm:"not null;index" json:"is_active"`
	AutoApprove bool           `gorm:"not null;default:false" json:"auto_approve"`
	Config      datatypes.JSON `gorm:"type:jsonb" json:"-"` // account numbers, wallet ids; never returned to clients
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (g *PaymentGateway) BeforeCreate(tx *gorm.DB) error {
	assignID(&g.ID)
	return nil
}
