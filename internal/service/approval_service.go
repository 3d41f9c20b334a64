package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsboard/internal/approval"
	"opsboard/internal/changefeed"
	"opsboard/internal/model"
	"opsboard/internal/repository"
	"opsboard/pkg/pagination"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

// Actor is the authenticated caller, taken from the JWT claims.
type Actor struct {
	ID   string
	Role string
}

type SubmitApprovalRequest struct {
	Kind              string          `json:"kind" binding:"required"`
	Title             string          `json:"title"`
	InventoryItemID   string          `json:"inventory_item_id"`
	ProcurementLineID string          `json:"procurement_line_id"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

type RejectApprovalRequest struct {
	Reason string `json:"reason"`
}

type ApprovalListFilter struct {
	Status      string
	Kind        string
	RequestedBy string
	Page        int
	Limit       int
}

type ApprovalResponse struct {
	ID                       string          `json:"id"`
	Kind                     string          `json:"kind"`
	Title                    string          `json:"title"`
	InventoryItemID          *string         `json:"inventory_item_id"`
	ProcurementLineID        *string         `json:"procurement_line_id"`
	RequestedBy              string          `json:"requested_by"`
	Quantity                 int             `json:"quantity"`
	UnitPrice                decimal.Decimal `json:"unit_price"`
	ComputedTotal            decimal.Decimal `json:"computed_total"`
	ManagerApproved          bool            `json:"manager_approved"`
	ManagerApprovedBy        *string         `json:"manager_approved_by"`
	ManagerApprovedAt        *string         `json:"manager_approved_at"`
	ProjectManagerApproved   bool            `json:"project_manager_approved"`
	ProjectManagerApprovedBy *string         `json:"project_manager_approved_by"`
	ProjectManagerApprovedAt *string         `json:"project_manager_approved_at"`
	RejectedBy               *string         `json:"rejected_by"`
	RejectedAt               *string         `json:"rejected_at"`
	RejectedStage            string          `json:"rejected_stage,omitempty"`
	RejectionReason          string          `json:"rejection_reason,omitempty"`
	Status                   string          `json:"status"`
	CreatedAt                string          `json:"created_at"`
	UpdatedAt                string          `json:"updated_at"`
}

// --- Interface ---

type ApprovalService interface {
	Submit(ctx context.Context, actor Actor, req SubmitApprovalRequest) (ApprovalResponse, error)
	ApproveAsManager(ctx context.Context, id string, actor Actor) (ApprovalResponse, error)
	ApproveAsProjectManager(ctx context.Context, id string, actor Actor) (ApprovalResponse, error)
	Reject(ctx context.Context, id string, actor Actor, reason string) (ApprovalResponse, error)
	Get(ctx context.Context, id string) (ApprovalResponse, error)
	List(ctx context.Context, filter ApprovalListFilter) ([]ApprovalResponse, int64, error)
}

type approvalService struct {
	approvalRepo repository.ApprovalRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	publisher    changefeed.Publisher // nil when the database publishes changes itself
	log          zerolog.Logger
	now          func() time.Time
}

func NewApprovalService(
	approvalRepo repository.ApprovalRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	publisher changefeed.Publisher,
	log zerolog.Logger,
) ApprovalService {
	return &approvalService{
		approvalRepo: approvalRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		publisher:    publisher,
		log:          log.With().Str("component", "approval_service").Logger(),
		now:          time.Now,
	}
}

// --- Implementation ---

func (s *approvalService) Submit(ctx context.Context, actor Actor, req SubmitApprovalRequest) (ApprovalResponse, error) {
	if err := approval.Authorize(actor.Role, approval.ActionSubmit, nil); err != nil {
		return ApprovalResponse{}, err
	}

	payload := approval.SubmitPayload{
		Kind:      model.Kind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Title:     req.Title,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	}
	var err error
	if payload.InventoryItemID, err = parseOptionalID("inventory_item_id", req.InventoryItemID); err != nil {
		return ApprovalResponse{}, err
	}
	if payload.ProcurementLineID, err = parseOptionalID("procurement_line_id", req.ProcurementLineID); err != nil {
		return ApprovalResponse{}, err
	}

	created, err := approval.Submit(actor.ID, payload, s.now())
	if err != nil {
		return ApprovalResponse{}, err
	}

	// Once issued the write is not cancellable; it either commits or fails.
	ctx = context.WithoutCancel(ctx)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.approvalRepo.Create(txCtx, &created); createErr != nil {
			return fmt.Errorf("failed to create approval request: %w", createErr)
		}
		return s.audit(txCtx, actor, model.ActionSubmitRequest, created, map[string]any{
			"kind":     created.Kind,
			"quantity": created.Quantity,
			"total":    created.ComputedTotal.StringFixed(4),
		})
	})
	if err != nil {
		return ApprovalResponse{}, storeUnavailable(err)
	}

	s.publish(ctx, changefeed.OpInsert, nil, &created)
	s.log.Info().Str("request_id", created.RecordID()).Str("actor", actor.ID).Msg("approval request submitted")
	return NewApprovalResponse(created), nil
}

func (s *approvalService) ApproveAsManager(ctx context.Context, id string, actor Actor) (ApprovalResponse, error) {
	return s.transition(ctx, approval.ActionApproveManager, id, actor, "")
}

func (s *approvalService) ApproveAsProjectManager(ctx context.Context, id string, actor Actor) (ApprovalResponse, error) {
	return s.transition(ctx, approval.ActionApproveProjectManager, id, actor, "")
}

func (s *approvalService) Reject(ctx context.Context, id string, actor Actor, reason string) (ApprovalResponse, error) {
	return s.transition(ctx, approval.ActionReject, id, actor, reason)
}

// transition reads the record, lets the state machine compute the next version and writes
// it with a single conditional update. Nothing is applied locally before the store accepts it.
func (s *approvalService) transition(ctx context.Context, action approval.Action, id string, actor Actor, reason string) (ApprovalResponse, error) {
	requestID, err := parseID(id)
	if err != nil {
		return ApprovalResponse{}, err
	}

	ctx = context.WithoutCancel(ctx)
	current, err := s.find(ctx, requestID)
	if err != nil {
		return ApprovalResponse{}, err
	}
	if err := approval.Authorize(actor.Role, action, current); err != nil {
		return ApprovalResponse{}, err
	}

	next, err := approval.Apply(action, *current, actor.ID, reason, s.now())
	if err != nil {
		return ApprovalResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if casErr := s.approvalRepo.CompareAndSwap(txCtx, requestID, approval.Guard(action, next), approval.Changes(action, next)); casErr != nil {
			return casErr
		}
		details := map[string]any{"status": next.Status}
		if action == approval.ActionReject {
			details["stage"] = next.RejectedStage
			details["reason"] = next.RejectionReason
		}
		return s.audit(txCtx, actor, auditAction(action), next, details)
	})
	if errors.Is(err, repository.ErrConflict) {
		fresh, findErr := s.find(ctx, requestID)
		if findErr != nil {
			return ApprovalResponse{}, findErr
		}
		s.log.Info().Str("request_id", id).Str("action", string(action)).Str("actor", actor.ID).Msg("transition lost to a concurrent change")
		return ApprovalResponse{}, &approval.StaleError{Action: action, Current: *fresh}
	}
	if err != nil {
		return ApprovalResponse{}, storeUnavailable(err)
	}

	s.publish(ctx, changefeed.OpUpdate, current, &next)
	s.log.Info().Str("request_id", id).Str("action", string(action)).Str("actor", actor.ID).Str("status", string(next.Status)).Msg("approval request transitioned")
	return NewApprovalResponse(next), nil
}

func (s *approvalService) Get(ctx context.Context, id string) (ApprovalResponse, error) {
	requestID, err := parseID(id)
	if err != nil {
		return ApprovalResponse{}, err
	}
	req, err := s.find(ctx, requestID)
	if err != nil {
		return ApprovalResponse{}, err
	}
	return NewApprovalResponse(*req), nil
}

func (s *approvalService) List(ctx context.Context, filter ApprovalListFilter) ([]ApprovalResponse, int64, error) {
	requests, total, err := s.approvalRepo.List(ctx, repository.ApprovalFilter{
		Status:      filter.Status,
		Kind:        filter.Kind,
		RequestedBy: filter.RequestedBy,
	}, pagination.New(filter.Page, filter.Limit))
	if err != nil {
		return nil, 0, storeUnavailable(err)
	}

	result := make([]ApprovalResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, NewApprovalResponse(r))
	}
	return result, total, nil
}

func (s *approvalService) find(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	req, err := s.approvalRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", approval.ErrNotFound, id)
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return req, nil
}

func (s *approvalService) audit(ctx context.Context, actor Actor, action string, r model.ApprovalRequest, details map[string]any) error {
	raw, _ := json.Marshal(details)
	entry := model.AuditLog{
		Actor:    actor.ID,
		Action:   action,
		EntityID: r.RecordID(),
		Entity:   r.TableName(),
		Details:  string(raw),
	}
	if err := s.auditRepo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// publish feeds the in-process change feed. A failure only delays dashboards until their next reload.
func (s *approvalService) publish(ctx context.Context, op string, before, after *model.ApprovalRequest) {
	if s.publisher == nil {
		return
	}
	if err := publishChange(ctx, s.publisher, model.ApprovalRequest{}.TableName(), op, before, after); err != nil {
		s.log.Warn().Err(err).Str("operation", op).Msg("failed to publish change event")
	}
}

// --- Helpers ---

func auditAction(action approval.Action) string {
	switch action {
	case approval.ActionApproveManager:
		return model.ActionManagerApprove
	case approval.ActionApproveProjectManager:
		return model.ActionProjectManagerApprove
	case approval.ActionReject:
		return model.ActionRejectRequest
	default:
		return model.ActionSubmitRequest
	}
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", approval.ErrStoreUnavailable, err)
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, &approval.ValidationError{Field: "id", Reason: "must be a uuid"}
	}
	return parsed, nil
}

func parseOptionalID(field, value string) (*uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return nil, &approval.ValidationError{Field: field, Reason: "must be a uuid"}
	}
	return &parsed, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func NewApprovalResponse(a model.ApprovalRequest) ApprovalResponse {
	a.Normalize()
	return ApprovalResponse{
		ID:                       a.RecordID(),
		Kind:                     string(a.Kind),
		Title:                    a.Title,
		InventoryItemID:          idString(a.InventoryItemID),
		ProcurementLineID:        idString(a.ProcurementLineID),
		RequestedBy:              a.RequestedBy,
		Quantity:                 a.Quantity,
		UnitPrice:                a.UnitPrice,
		ComputedTotal:            a.ComputedTotal,
		ManagerApproved:          a.ManagerApproved,
		ManagerApprovedBy:        a.ManagerApprovedBy,
		ManagerApprovedAt:        formatTime(a.ManagerApprovedAt),
		ProjectManagerApproved:   a.ProjectManagerApproved,
		ProjectManagerApprovedBy: a.ProjectManagerApprovedBy,
		ProjectManagerApprovedAt: formatTime(a.ProjectManagerApprovedAt),
		RejectedBy:               a.RejectedBy,
		RejectedAt:               formatTime(a.RejectedAt),
		RejectedStage:            a.RejectedStage,
		RejectionReason:          a.RejectionReason,
		Status:                   string(a.Status),
		CreatedAt:                a.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:                a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
