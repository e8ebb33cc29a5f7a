package repository

import (
	"context"

	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRepository reads the marketing rows shown next to a project's finances.
type CampaignRepository interface {
	ListCampaignsByProjects(ctx context.Context, companyID uuid.UUID, projectIDs []uuid.UUID) ([]model.Campaign, error)
	ListLeadsByProjects(ctx context.Context, companyID uuid.UUID, projectIDs []uuid.UUID) ([]model.Lead, error)
}

type campaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) ListCampaignsByProjects(ctx context.Context, companyID uuid.UUID, projectIDs []uuid.UUID) ([]model.Campaign, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	var campaigns []model.Campaign
	err := GetDB(ctx, r.db).
		Where("company_id = ? AND project_id IN ?", companyID, projectIDs).
		Order("created_at desc").
		Find(&campaigns).Error
	return campaigns, err
}

func (r *campaignRepository) ListLeadsByProjects(ctx context.Context, companyID uuid.UUID, projectIDs []uuid.UUID) ([]model.Lead, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	var leads []model.Lead
	err := GetDB(ctx, r.db).
		Where("company_id = ? AND project_id IN ?", companyID, projectIDs).
		Order("created_at desc").
		Find(&leads).Error
	return leads, err
}
