package repository

import (
	"context"
	"errors"

	"opsboard/internal/model"
	"opsboard/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional update matched no row.
	ErrConflict = errors.New("conditional update matched no row")
)

// ApprovalFilter narrows List. Empty fields match everything.
type ApprovalFilter struct {
	Status      string
	Kind        string
	RequestedBy string
}

type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	List(ctx context.Context, filter ApprovalFilter, page pagination.Params) ([]model.ApprovalRequest, int64, error)
	All(ctx context.Context) ([]model.ApprovalRequest, error)
	// CompareAndSwap writes changes only if the row still matches guard.
	CompareAndSwap(ctx context.Context, id uuid.UUID, guard, changes map[string]any) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *approvalRepository) List(ctx context.Context, filter ApprovalFilter, page pagination.Params) ([]model.ApprovalRequest, int64, error) {
	var requests []model.ApprovalRequest
	var total int64

	filtered := func(db *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.Kind != "" {
			db = db.Where("kind = ?", filter.Kind)
		}
		if filter.RequestedBy != "" {
			db = db.Where("requested_by = ?", filter.RequestedBy)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ApprovalRequest{}).Scopes(filtered).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Scopes(filtered, page.Scope).Order("created_at DESC").Order("id ASC").Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *approvalRepository) All(ctx context.Context) ([]model.ApprovalRequest, error) {
	var requests []model.ApprovalRequest
	if err := GetDB(ctx, r.db).Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *approvalRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, guard, changes map[string]any) error {
	result := GetDB(ctx, r.db).
		Model(&model.ApprovalRequest{}).
		Where("id = ?", id).
		Where(guard).
		Updates(changes)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
