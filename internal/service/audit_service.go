package service

import (
	"context"
	"time"

	"opsboard/internal/repository"
	"opsboard/pkg/pagination"
)

type AuditLogResponse struct {
	ID        string `json:"id"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	EntityID  string `json:"entity_id"`
	Entity    string `json:"entity"`
	Details   string `json:"details"`
	CreatedAt string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, entityID string, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// GetAuditLogs returns the audit trail newest first, optionally for a single record
func (s *auditService) GetAuditLogs(ctx context.Context, entityID string, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.auditRepo.List(ctx, entityID, pagination.New(page, limit))
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, AuditLogResponse{
			ID:        l.ID.String(),
			Actor:     l.Actor,
			Action:    l.Action,
			EntityID:  l.EntityID,
			Entity:    l.Entity,
			Details:   l.Details,
			CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	return res, total, nil
}
