package repository

import (
	"context"

	"crm-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GatewayRepository interface {
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.PaymentGateway, error)
	ListActive(ctx context.Context, companyID uuid.UUID) ([]model.PaymentGateway, error)
}

type gatewayRepository struct {
	db *gorm.DB
}

func NewGatewayRepository(db *gorm.DB) GatewayRepository {
	return &gatewayRepository{db: db}
}

func (r *gatewayRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*model.PaymentGateway, error) {
	var gateway model.PaymentGateway
	if err := GetDB(ctx, r.db).First(&gateway, "id = ? AND company_id = ?", id, companyID).Error; err != nil {
		return nil, err
	}
	return &gateway, nil
}

func (r *gatewayRepository) ListActive(ctx context.Context, companyID uuid.UUID) ([]model.PaymentGateway, error) {
	var gateways []model.PaymentGateway
	err := GetDB(ctx, r.db).
		Where("company_id = ? AND is_active = ?", companyID, true).
		Order("name asc").
		Find(&gateways).Error
	return gateways, err
}
