package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"opsboard/internal/approval"
	"opsboard/internal/changefeed"
	"opsboard/internal/model"
	"opsboard/internal/projection"
	"opsboard/internal/reconcile"
	"opsboard/internal/repository"

	"github.com/rs/zerolog"
)

// Websocket event names pushed to dashboard clients.
const (
	EventNotification      = "notification"
	EventProjectionChanged = "projection_changed"
	EventFeedStatus        = "feed_status"
)

var ErrUnknownRole = errors.New("unknown dashboard role")

// Notifier pushes a message to the connected clients of a role. An empty actor reaches every
// client of the role, otherwise only that actor's clients. It must not block.
type Notifier interface {
	Push(role, actor, event string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Push(string, string, string, any) {}

type FeedStatus struct {
	Table   string `json:"table"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type DashboardConfig struct {
	Source       changefeed.Source
	ApprovalRepo repository.ApprovalRepository
	OrderRepo    repository.OrderRepository
	Notifier     Notifier
	Backoff      changefeed.Backoff
	Logger       zerolog.Logger
}

// DashboardService hands out one Dashboard per role, started on first use. Dashboards share
// nothing but the change feed.
type DashboardService struct {
	cfg    DashboardConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	dashboards map[string]*Dashboard
	wg         sync.WaitGroup
}

func NewDashboardService(ctx context.Context, cfg DashboardConfig) *DashboardService {
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	ctx, cancel := context.WithCancel(ctx)
	return &DashboardService{
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		dashboards: make(map[string]*Dashboard),
	}
}

// Dashboard returns the running dashboard for role, starting it if needed. The returned
// dashboard may still be loading; see Dashboard.Ready.
func (s *DashboardService) Dashboard(role string) (*Dashboard, error) {
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dashboards[role]; ok {
		return d, nil
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	d := newDashboard(role, s.cfg)
	s.dashboards[role] = d
	d.start(s.ctx, &s.wg)
	s.cfg.Logger.Info().Str("role", role).Msg("dashboard started")
	return d, nil
}

// Close stops every dashboard and waits for their syncers to exit.
func (s *DashboardService) Close() {
	s.cancel()
	s.wg.Wait()
}

// Dashboard is one role's live view: an approval request snapshot, a purchase order snapshot
// and the projection derived from both.
type Dashboard struct {
	role     string
	notifier Notifier
	filter   projection.Filter
	log      zerolog.Logger
	ready    chan struct{}

	requests *reconcile.Syncer[model.ApprovalRequest]
	orders   *reconcile.Syncer[model.PurchaseOrder]
}

func newDashboard(role string, cfg DashboardConfig) *Dashboard {
	log := cfg.Logger.With().Str("role", role).Logger()
	d := &Dashboard{
		role:     role,
		notifier: cfg.Notifier,
		filter:   projection.ForRole(role, ""),
		log:      log,
		ready:    make(chan struct{}),
	}
	d.requests = reconcile.NewSyncer(reconcile.SyncerConfig[model.ApprovalRequest]{
		Table:    model.ApprovalRequest{}.TableName(),
		Source:   cfg.Source,
		Load:     cfg.ApprovalRepo.All,
		Diff:     approval.Diff,
		Observer: d,
		Backoff:  cfg.Backoff,
		Logger:   log,
	})
	d.orders = reconcile.NewSyncer(reconcile.SyncerConfig[model.PurchaseOrder]{
		Table:    model.PurchaseOrder{}.TableName(),
		Source:   cfg.Source,
		Load:     cfg.OrderRepo.All,
		Diff:     DiffOrders,
		Observer: d,
		Backoff:  cfg.Backoff,
		Logger:   log,
	})
	return d
}

func (d *Dashboard) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(3)
	go func() {
		defer wg.Done()
		d.requests.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		d.orders.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for _, ready := range []<-chan struct{}{d.requests.Ready(), d.orders.Ready()} {
			select {
			case <-ready:
			case <-ctx.Done():
				return
			}
		}
		close(d.ready)
	}()
}

func (d *Dashboard) Role() string { return d.role }

// Ready is closed once both snapshots have their first baseline.
func (d *Dashboard) Ready() <-chan struct{} { return d.ready }

// GetAll returns every approval request in the snapshot, newest first.
func (d *Dashboard) GetAll() []model.ApprovalRequest {
	return d.requests.GetAll()
}

func (d *Dashboard) GetByID(id string) (model.ApprovalRequest, bool) {
	return d.requests.GetByID(id)
}

func (d *Dashboard) Orders() []model.PurchaseOrder {
	return d.orders.GetAll()
}

// Projection is rebuilt from the current snapshots on every call.
func (d *Dashboard) Projection(actor string) []projection.Item {
	return projection.Build(d.orders.GetAll(), d.requests.GetAll(), projection.ForRole(d.role, actor))
}

// Healthy is false while either feed is down.
func (d *Dashboard) Healthy() (bool, error) {
	if ok, err := d.requests.Healthy(); !ok {
		return false, err
	}
	return d.orders.Healthy()
}

// Resync drops incremental state and reloads both snapshots.
func (d *Dashboard) Resync() {
	d.requests.Resync()
	d.orders.Resync()
}

// Notify implements reconcile.Observer. Events are only pushed to clients allowed to see the record.
func (d *Dashboard) Notify(table string, events []model.DomainEvent) {
	for _, ev := range events {
		actor, ok := d.audience(table, ev.RecordID)
		if !ok {
			continue
		}
		d.log.Debug().Str("event", string(ev.Type)).Str("record_id", ev.RecordID).Msg("notification")
		d.notifier.Push(d.role, actor, EventNotification, ev)
	}
}

func (d *Dashboard) SnapshotChanged(table string) {
	d.notifier.Push(d.role, "", EventProjectionChanged, map[string]string{"table": table})
}

func (d *Dashboard) FeedStatus(table string, healthy bool, err error) {
	status := FeedStatus{Table: table, Healthy: healthy}
	if err != nil {
		status.Error = err.Error()
	}
	d.notifier.Push(d.role, "", EventFeedStatus, status)
}

// audience decides who on this dashboard may see a record's notifications. Employees only
// hear about their own requests, so their messages are addressed to the requester.
func (d *Dashboard) audience(table, id string) (string, bool) {
	switch table {
	case model.ApprovalRequest{}.TableName():
		r, ok := d.requests.GetByID(id)
		if !ok {
			return "", false
		}
		f := projection.ForRole(d.role, r.RequestedBy)
		if f.Requests == nil || !f.Requests(r) {
			return "", false
		}
		if d.role == model.RoleEmployee {
			return r.RequestedBy, true
		}
		return "", true
	case model.PurchaseOrder{}.TableName():
		o, ok := d.orders.GetByID(id)
		if !ok || d.filter.Orders == nil {
			return "", false
		}
		return "", d.filter.Orders(o)
	default:
		return "", false
	}
}

// DiffOrders derives the purchase order notifications.
func DiffOrders(prev *model.PurchaseOrder, next model.PurchaseOrder) []model.DomainEvent {
	if prev == nil {
		return []model.DomainEvent{{
			Type:       model.EventOrderCreated,
			Table:      next.TableName(),
			RecordID:   next.RecordID(),
			Actor:      next.CreatedBy,
			Detail:     next.OrderNumber,
			OccurredAt: next.CreatedAt,
		}}
	}
	if prev.Status == next.Status {
		return nil
	}
	return []model.DomainEvent{{
		Type:       model.EventOrderStatus,
		Table:      next.TableName(),
		RecordID:   next.RecordID(),
		Detail:     next.Status,
		OccurredAt: next.UpdatedAt,
	}}
}
