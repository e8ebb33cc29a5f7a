package repository

import (
	"context"

	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceRepository hands out per-tenant invoice counter values.
type SequenceRepository interface {
	Next(ctx context.Context, companyID uuid.UUID) (int64, error)
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next increments and returns the tenant's counter. The UPDATE holds the row lock
// until the surrounding transaction ends, so callers must run it inside RunInTx.
func (r *sequenceRepository) Next(ctx context.Context, companyID uuid.UUID) (int64, error) {
	db := GetDB(ctx, r.db)

	seq := model.InvoiceSequence{CompanyID: companyID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return 0, err
	}

	if err := db.Model(&model.InvoiceSequence{}).
		Where("company_id = ?", companyID).
		Update("last_value", gorm.Expr("last_value + 1")).Error; err != nil {
		return 0, err
	}

	if err := db.First(&seq, "company_id = ?", companyID).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}
