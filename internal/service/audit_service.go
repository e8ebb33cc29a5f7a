package service

import (
	"context"
	"encoding/json"
	"time"

	"crm-backend/internal/apperror"
	"crm-backend/internal/model"
	"crm-backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditLogResponse struct {
	ID         string          `json:"id"`
	UserID     *string         `json:"user_id"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Details    json.RawMessage `json:"details" swaggertype:"object"`
	CreatedAt  string          `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, companyID uuid.UUID, entityID string, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// GetAuditLogs returns the tenant's audit trail, newest first, optionally for one entity.
func (s *auditService) GetAuditLogs(ctx context.Context, companyID uuid.UUID, entityID string, page, limit int) ([]AuditLogResponse, int64, error) {
	page, limit = normalizePage(page, limit)

	logs, total, err := s.auditRepo.List(ctx, companyID, entityID, page, limit)
	if err != nil {
		return nil, 0, apperror.Database(err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		details := json.RawMessage(l.Details)
		if len(details) == 0 {
			details = json.RawMessage("{}")
		}
		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     uuidString(l.UserID),
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}

// recordAudit writes one audit row using whatever transaction ctx carries.
func recordAudit(ctx context.Context, repo repository.AuditRepository, companyID, actorID uuid.UUID,
	action, entityID, entityName string, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return apperror.ErrInternal.WithMessage("failed to encode audit details").WithError(err)
	}
	entry := &model.AuditLog{
		CompanyID:  companyID,
		UserID:     actorPtr(actorID),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    datatypes.JSON(raw),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return apperror.Database(err)
	}
	return nil
}
