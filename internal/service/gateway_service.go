package service

import (
	"context"

	"crm-backend/internal/apperror"
	"crm-backend/internal/repository"

	"github.com/google/uuid"
)

type GatewayResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	AutoApprove bool   `json:"auto_approve"`
}

type GatewayService interface {
	ListActive(ctx context.Context, companyID uuid.UUID) ([]GatewayResponse, error)
}

type gatewayService struct {
	gatewayRepo repository.GatewayRepository
}

func NewGatewayService(gatewayRepo repository.GatewayRepository) GatewayService {
	return &gatewayService{gatewayRepo: gatewayRepo}
}

// ListActive returns the gateways a payment may be recorded against. Gateway config is
// never exposed.
func (s *gatewayService) ListActive(ctx context.Context, companyID uuid.UUID) ([]GatewayResponse, error) {
	gateways, err := s.gatewayRepo.ListActive(ctx, companyID)
	if err != nil {
		return nil, apperror.Database(err)
	}

	res := make([]GatewayResponse, 0, len(gateways))
	for _, g := range gateways {
		res = append(res, GatewayResponse{
			ID:          g.ID.String(),
			Name:        g.Name,
			Type:        g.Type,
			AutoApprove: g.AutoApprove,
		})
	}
	return res, nil
}
