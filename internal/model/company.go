package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Company is the tenant. Every finance record carries its ID.
type Company struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	InvoicePrefix string    `gorm:"type:varchar(10);not null;default:'INV'" json:"invoice_prefix"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// Client is a customer of a company. Invoices and projects are billed to clients.
type Client struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Email       string         `gorm:"type:varchar(255);index" json:"email"`
	Phone       string         `gorm:"type:varchar(50)" json:"phone"`
	ContactInfo datatypes.JSON `gorm:"type:jsonb" json:"contact_info,omitempty"` // opaque blob owned by the CRM screens
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// assignID generates the primary key in Go so the schema stays portable across drivers.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
