package repository

import (
	"context"

	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectRepository interface {
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Project, error)
	ListByClient(ctx context.Context, companyID, clientID uuid.UUID) ([]model.Project, error)
	UpdateStatus(ctx context.Context, companyID, id uuid.UUID, status string) error
}

type projectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.Project, error) {
	var project model.Project
	if err := GetDB(ctx, r.db).
		Preload("Client").
		First(&project, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *projectRepository) ListByClient(ctx context.Context, companyID, clientID uuid.UUID) ([]model.Project, error) {
	var projects []model.Project
	err := GetDB(ctx, r.db).
		Where("company_id = ? AND client_id = ?", companyID, clientID).
		Order("created_at desc").
		Find(&projects).Error
	return projects, err
}

func (r *projectRepository) UpdateStatus(ctx context.Context, companyID, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.Project{}).
		Where("id = ? AND company_id = ?", id, companyID).
		Update("status", status).Error
}
