package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Campaign is a marketing campaign, optionally attached to a project.
type Campaign struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	ProjectID *uuid.UUID      `gorm:"type:uuid;index" json:"project_id"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Channel   string          `gorm:"type:varchar(30)" json:"channel"` // FACEBOOK, EMAIL, SMS...
	Status    string          `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	Budget    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"budget"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// Lead is a prospect captured by a campaign or attached to a project.
type Lead struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"company_id"`
	ProjectID  *uuid.UUID `gorm:"type:uuid;index" json:"project_id"`
	CampaignID *uuid.UUID `gorm:"type:uuid;index" json:"campaign_id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	Email      string     `gorm:"type:varchar(255)" json:"email"`
	Phone      string     `gorm:"type:varchar(50)" json:"phone"`
	Source     string     `gorm:"type:varchar(50)" json:"source"`
	Status     string     `gorm:"type:varchar(20);not null;default:'NEW'" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	assignID(&l.ID)
	return nil
}
