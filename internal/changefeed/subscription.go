package changefeed

import (
	"context"
	"sync"
)

const subscriptionBuffer = 256

// Source opens change subscriptions for one table at a time.
type Source interface {
	Subscribe(ctx context.Context, table string) (*Subscription, error)
}

// Publisher pushes change events to whoever listens on the table's channel.
type Publisher interface {
	Publish(ctx context.Context, ev RawEvent) error
}

// Subscription is a live stream of change events for one table.
type Subscription struct {
	table  string
	events chan RawEvent
	cancel context.CancelFunc

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newSubscription(parent context.Context, table string) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		table:  table,
		events: make(chan RawEvent, subscriptionBuffer),
		cancel: cancel,
	}, ctx
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan RawEvent { return s.events }

// Table is the table this subscription listens on.
func (s *Subscription) Table() string { return s.table }

// Close stops delivery; Events is closed shortly after.
func (s *Subscription) Close() { s.cancel() }

// Err is nil after a consumer-initiated close and the transport error otherwise.
// Only meaningful once Events is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// finish must be called by the producing side only, exactly when it stops sending.
func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
		s.cancel()
	})
}
