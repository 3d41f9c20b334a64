package changefeed

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process broker. It backs single-instance deployments where the
// command service publishes its own changes, and it stands in for the database in tests.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*Subscription]struct{})}
}

func (m *Memory) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, subCtx := newSubscription(ctx, table)

	m.mu.Lock()
	if m.subs[table] == nil {
		m.subs[table] = make(map[*Subscription]struct{})
	}
	m.subs[table][sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-subCtx.Done()
		m.remove(sub, nil)
	}()
	return sub, nil
}

// Publish delivers ev to every subscriber of its table. A subscriber whose buffer is
// full is disconnected rather than silently skipped.
func (m *Memory) Publish(ctx context.Context, ev RawEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs[ev.Table] {
		select {
		case sub.events <- ev:
		default:
			delete(m.subs[ev.Table], sub)
			sub.finish(fmt.Errorf("%w: %w", ErrTransportDisconnected, ErrSlowConsumer))
		}
	}
	return nil
}

// Disconnect drops every subscription on table as if the transport had failed.
func (m *Memory) Disconnect(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs[table] {
		delete(m.subs[table], sub)
		sub.finish(ErrTransportDisconnected)
	}
}

// Subscribers counts live subscriptions on table.
func (m *Memory) Subscribers(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[table])
}

func (m *Memory) remove(sub *Subscription, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.table][sub]; !ok {
		return
	}
	delete(m.subs[sub.table], sub)
	sub.finish(err)
}
