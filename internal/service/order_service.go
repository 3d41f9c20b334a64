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

var (
	ErrOrderNotFound = errors.New("purchase order not found")
	ErrInvalidOrder  = errors.New("invalid purchase order")
	// ErrOrderConflict means another status change committed first.
	ErrOrderConflict = errors.New("purchase order changed concurrently")
)

// DTOs
type CreateOrderRequest struct {
	OrderNumber string          `json:"order_number"`
	Supplier    string          `json:"supplier" binding:"required"`
	ItemName    string          `json:"item_name" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required,gt=0"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderResponse struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	Supplier    string          `json:"supplier"`
	ItemName    string          `json:"item_name"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (OrderResponse, error)
	UpdateStatus(ctx context.Context, actor Actor, id string, status string) (OrderResponse, error)
	ListOrders(ctx context.Context, page, limit int) ([]OrderResponse, int64, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	publisher changefeed.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	publisher changefeed.Publisher,
	log zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		publisher: publisher,
		log:       log.With().Str("component", "order_service").Logger(),
		now:       time.Now,
	}
}

// orderTransitions lists the statuses each status may move to.
// orderTransitions never leads back to an earlier status, so a write guarded on the
// status it was computed from cannot overwrite a change it did not see.
var orderTransitions = map[string][]string{
	model.OrderStatusDraft:   {model.OrderStatusOrdered, model.OrderStatusCancelled},
	model.OrderStatusOrdered: {model.OrderStatusReceived, model.OrderStatusCancelled},
}

func canManageOrders(role string) bool {
	return role == model.RoleProcurement || role == model.RoleAdmin
}

func (s *orderService) CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (OrderResponse, error) {
	if !canManageOrders(actor.Role) {
		return OrderResponse{}, fmt.Errorf("%w: %q may not create purchase orders", approval.ErrForbidden, actor.Role)
	}
	if req.Quantity <= 0 {
		return OrderResponse{}, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidOrder)
	}
	if req.TotalAmount.IsNegative() {
		return OrderResponse{}, fmt.Errorf("%w: total_amount must not be negative", ErrInvalidOrder)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	order := model.PurchaseOrder{
		ID:          uuid.New(),
		OrderNumber: strings.TrimSpace(req.OrderNumber),
		Supplier:    strings.TrimSpace(req.Supplier),
		ItemName:    strings.TrimSpace(req.ItemName),
		Quantity:    req.Quantity,
		TotalAmount: req.TotalAmount,
		Status:      model.OrderStatusDraft,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.OrderNumber == "" {
		order.OrderNumber = fmt.Sprintf("PO-%s-%s", now.Format("20060102"), strings.ToUpper(order.ID.String()[:8]))
	}

	ctx = context.WithoutCancel(ctx)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orderRepo.Create(txCtx, &order); err != nil {
			return fmt.Errorf("failed to create purchase order: %w", err)
		}
		return s.audit(txCtx, actor, model.ActionCreatePurchaseOrder, order)
	})
	if err != nil {
		return OrderResponse{}, storeUnavailable(err)
	}

	s.publish(ctx, changefeed.OpInsert, nil, &order)
	s.log.Info().Str("order_id", order.RecordID()).Str("order_number", order.OrderNumber).Msg("purchase order created")
	return NewOrderResponse(order), nil
}

func (s *orderService) UpdateStatus(ctx context.Context, actor Actor, id string, status string) (OrderResponse, error) {
	if !canManageOrders(actor.Role) {
		return OrderResponse{}, fmt.Errorf("%w: %q may not update purchase orders", approval.ErrForbidden, actor.Role)
	}
	orderID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return OrderResponse{}, fmt.Errorf("%w: id must be a uuid", ErrInvalidOrder)
	}
	status = strings.ToLower(strings.TrimSpace(status))

	ctx = context.WithoutCancel(ctx)
	current, err := s.findOrder(ctx, orderID)
	if err != nil {
		return OrderResponse{}, err
	}
	if !allowedOrderStatus(current.Status, status) {
		return OrderResponse{}, fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidOrder, current.Status, status)
	}
	before, after := *current, *current
	after.Status = status
	after.UpdatedAt = model.NextVersion(current.UpdatedAt, s.now())

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if casErr := s.orderRepo.CompareAndSwapStatus(txCtx, orderID, before.Status, status, after.UpdatedAt); casErr != nil {
			return casErr
		}
		return s.audit(txCtx, actor, model.ActionUpdatePurchaseOrder, after)
	})
	if errors.Is(err, repository.ErrConflict) {
		fresh, findErr := s.findOrder(ctx, orderID)
		if findErr != nil {
			return OrderResponse{}, findErr
		}
		s.log.Info().Str("order_id", id).Str("status", status).Str("actor", actor.ID).Msg("status change lost to a concurrent change")
		return OrderResponse{}, fmt.Errorf("%w: order is now %s", ErrOrderConflict, fresh.Status)
	}
	if err != nil {
		return OrderResponse{}, storeUnavailable(err)
	}

	s.publish(ctx, changefeed.OpUpdate, &before, &after)
	return NewOrderResponse(after), nil
}

func (s *orderService) ListOrders(ctx context.Context, page, limit int) ([]OrderResponse, int64, error) {
	orders, total, err := s.orderRepo.List(ctx, pagination.New(page, limit))
	if err != nil {
		return nil, 0, storeUnavailable(err)
	}
	res := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		res = append(res, NewOrderResponse(o))
	}
	return res, total, nil
}

func (s *orderService) findOrder(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return order, nil
}

func (s *orderService) audit(ctx context.Context, actor Actor, action string, o model.PurchaseOrder) error {
	details, _ := json.Marshal(map[string]any{
		"order_number": o.OrderNumber,
		"status":       o.Status,
		"total":        o.TotalAmount.StringFixed(4),
	})
	entry := model.AuditLog{
		Actor:    actor.ID,
		Action:   action,
		EntityID: o.RecordID(),
		Entity:   o.TableName(),
		Details:  string(details),
	}
	if err := s.auditRepo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *orderService) publish(ctx context.Context, op string, before, after *model.PurchaseOrder) {
	if s.publisher == nil {
		return
	}
	if err := publishChange(ctx, s.publisher, model.PurchaseOrder{}.TableName(), op, before, after); err != nil {
		s.log.Warn().Err(err).Str("operation", op).Msg("failed to publish change event")
	}
}

func allowedOrderStatus(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// publishChange encodes a row change the way the database trigger does and publishes it.
func publishChange[T any](ctx context.Context, pub changefeed.Publisher, table, op string, before, after *T) error {
	var b, a any
	if before != nil {
		b = before
	}
	if after != nil {
		a = after
	}
	ev, err := changefeed.NewRawEvent(table, op, b, a)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, ev)
}

func NewOrderResponse(o model.PurchaseOrder) OrderResponse {
	return OrderResponse{
		ID:          o.RecordID(),
		OrderNumber: o.OrderNumber,
		Supplier:    o.Supplier,
		ItemName:    o.ItemName,
		Quantity:    o.Quantity,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		CreatedBy:   o.CreatedBy,
		CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
