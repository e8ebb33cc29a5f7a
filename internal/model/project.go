package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectStatus enum constants
const (
	ProjectStatusDraft      = "DRAFT"
	ProjectStatusSubmitted  = "SUBMITTED"
	ProjectStatusInProgress = "IN_PROGRESS"
	ProjectStatusCompleted  = "COMPLETED"
	ProjectStatusCancelled  = "CANCELLED"
)

var projectTransitions = map[string][]string{
	ProjectStatusDraft:      {ProjectStatusSubmitted, ProjectStatusCancelled},
	ProjectStatusSubmitted:  {ProjectStatusInProgress, ProjectStatusCancelled},
	ProjectStatusInProgress: {ProjectStatusCompleted, ProjectStatusCancelled},
}

// Project groups invoices (and through them payments) for one client.
// Its lifecycle is independent of invoice status.
type Project struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	ClientID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Client      *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Budget      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"budget"`
	Status      string          `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	StartDate   *time.Time      `json:"start_date"`
	EndDate     *time.Time      `json:"end_date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// CanTransitionProject reports whether a project may move from one status to another.
func CanTransitionProject(from, to string) bool {
	for _, next := range projectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidProjectStatus reports whether s is one of the known project statuses.
func IsValidProjectStatus(s string) bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusSubmitted, ProjectStatusInProgress,
		ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}
