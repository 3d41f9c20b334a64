package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"opsboard/internal/approval"
	"opsboard/internal/model"
	"opsboard/internal/repository"
	"opsboard/pkg/pagination"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderService(t *testing.T) *orderService {
	t.Helper()
	return newOrderServiceWith(t, nil)
}

func newOrderServiceWith(t *testing.T, wrap func(repository.OrderRepository) repository.OrderRepository) *orderService {
	t.Helper()
	db := newTestDB(t)
	var orders repository.OrderRepository = repository.NewOrderRepository(db)
	if wrap != nil {
		orders = wrap(orders)
	}
	svc := NewOrderService(
		orders,
		repository.NewAuditRepository(db),
		repository.NewTransactionManager(db),
		nil,
		zerolog.Nop(),
	).(*orderService)
	svc.now = stepClock()
	return svc
}

func TestOrderService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t)
	buyer := Actor{ID: "P1", Role: model.RoleProcurement}

	created, err := svc.CreateOrder(ctx, buyer, CreateOrderRequest{
		Supplier: "Acme", ItemName: "Cement", Quantity: 20, TotalAmount: decimal.NewFromInt(400),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDraft, created.Status)
	assert.True(t, strings.HasPrefix(created.OrderNumber, "PO-20250301-"))

	ordered, err := svc.UpdateStatus(ctx, buyer, created.ID, "ORDERED")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusOrdered, ordered.Status)
	assert.NotEqual(t, created.UpdatedAt, ordered.UpdatedAt)

	_, err = svc.UpdateStatus(ctx, buyer, created.ID, model.OrderStatusDraft)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	received, err := svc.UpdateStatus(ctx, buyer, created.ID, model.OrderStatusReceived)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusReceived, received.Status)

	_, err = svc.UpdateStatus(ctx, buyer, created.ID, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidOrder, "received is final")

	list, total, err := svc.ListOrders(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)
}

func TestOrderService_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t)

	_, err := svc.CreateOrder(ctx, employee, CreateOrderRequest{Supplier: "Acme", ItemName: "Cement", Quantity: 1})
	assert.ErrorIs(t, err, approval.ErrForbidden)

	_, err = svc.CreateOrder(ctx, Actor{ID: "A1", Role: model.RoleAdmin}, CreateOrderRequest{
		Supplier: "Acme", ItemName: "Cement", Quantity: 1, TotalAmount: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = svc.UpdateStatus(ctx, Actor{ID: "A1", Role: model.RoleAdmin}, uuid.NewString(), model.OrderStatusOrdered)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// gatedOrders holds the first two reads until both have happened.
type gatedOrders struct {
	repository.OrderRepository
	reads   atomic.Int32
	arrived sync.WaitGroup
}

func (g *gatedOrders) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	o, err := g.OrderRepository.FindByID(ctx, id)
	if g.reads.Add(1) <= 2 {
		g.arrived.Done()
		g.arrived.Wait()
	}
	return o, err
}

func TestOrderService_ConcurrentStatusChanges(t *testing.T) {
	ctx := context.Background()
	gate := &gatedOrders{}
	svc := newOrderServiceWith(t, func(inner repository.OrderRepository) repository.OrderRepository {
		gate.OrderRepository = inner
		return gate
	})
	buyer := Actor{ID: "P1", Role: model.RoleProcurement}

	created, err := svc.CreateOrder(ctx, buyer, CreateOrderRequest{
		Supplier: "Acme", ItemName: "Cement", Quantity: 20, TotalAmount: decimal.NewFromInt(400),
	})
	require.NoError(t, err)
	gate.arrived.Add(2)

	targets := []string{model.OrderStatusOrdered, model.OrderStatusCancelled}
	results := make([]OrderResponse, len(targets))
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, status := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.UpdateStatus(ctx, buyer, created.ID, status)
		}()
	}
	wg.Wait()

	winner, loser := 0, 1
	if errs[0] != nil {
		winner, loser = 1, 0
	}
	require.NoError(t, errs[winner])
	require.ErrorIs(t, errs[loser], ErrOrderConflict)
	assert.Contains(t, errs[loser].Error(), targets[winner])

	stored, err := gate.OrderRepository.FindByID(ctx, uuid.MustParse(created.ID))
	require.NoError(t, err)
	assert.Equal(t, targets[winner], stored.Status)
	assert.Equal(t, results[winner].Status, stored.Status)

	_, total, err := svc.auditRepo.List(ctx, created.ID, pagination.New(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 2, total, "create plus the winning status change")
}
