package repository

import (
	"context"
	"errors"
	"time"

	"opsboard/internal/model"
	"opsboard/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	// CompareAndSwapStatus moves the order to status only if it is still in from.
	// It returns ErrConflict when the row has moved on or is gone.
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, status string, at time.Time) error
	List(ctx context.Context, page pagination.Params) ([]model.PurchaseOrder, int64, error)
	All(ctx context.Context) ([]model.PurchaseOrder, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.PurchaseOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, status string, at time.Time) error {
	result := GetDB(ctx, r.db).Model(&model.PurchaseOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": status, "updated_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *orderRepository) List(ctx context.Context, page pagination.Params) ([]model.PurchaseOrder, int64, error) {
	var orders []model.PurchaseOrder
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.PurchaseOrder{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.
		Order("created_at DESC").
		Order("id ASC").
		Scopes(page.Scope).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) All(ctx context.Context) ([]model.PurchaseOrder, error) {
	var orders []model.PurchaseOrder
	if err := GetDB(ctx, r.db).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
