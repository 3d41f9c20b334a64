package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"opsboard/internal/changefeed"
	"opsboard/internal/model"

	"github.com/rs/zerolog"
)

// Loader reads the full current contents of a table.
type Loader[T model.Record] func(ctx context.Context) ([]T, error)

// Observer is told about everything a Syncer does. Calls come from the Syncer's
// goroutine and must not block for long.
type Observer interface {
	Notify(table string, events []model.DomainEvent)
	SnapshotChanged(table string)
	FeedStatus(table string, healthy bool, err error)
}

type nopObserver struct{}

func (nopObserver) Notify(string, []model.DomainEvent) {}
func (nopObserver) SnapshotChanged(string)             {}
func (nopObserver) FeedStatus(string, bool, error)     {}

// SyncerConfig wires a Syncer. Table, Source and Load are required.
type SyncerConfig[T model.Record] struct {
	Table    string
	Source   changefeed.Source
	Load     Loader[T]
	Diff     Differ[T]
	Observer Observer
	Backoff  changefeed.Backoff
	Logger   zerolog.Logger
}

var errResync = errors.New("resync requested")

// Syncer owns the authoritative local snapshot of one table.
//
// Each session subscribes first and loads second, so events raised while the load runs
// wait in the subscription and are replayed on top of it; the engine drops the ones the
// load already reflects. When the subscription drops the Syncer is degraded: it applies
// nothing and raises no notifications until a new session has loaded a fresh baseline.
// A reset event from upstream starts a new session straight away.
type Syncer[T model.Record] struct {
	table    string
	source   changefeed.Source
	load     Loader[T]
	engine   Engine[T]
	observer Observer
	backoff  changefeed.Backoff
	log      zerolog.Logger

	resync    chan struct{}
	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.RWMutex
	snap    Snapshot[T]
	healthy bool
	lastErr error
}

func NewSyncer[T model.Record](cfg SyncerConfig[T]) *Syncer[T] {
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Syncer[T]{
		table:    cfg.Table,
		source:   cfg.Source,
		load:     cfg.Load,
		engine:   Engine[T]{Diff: cfg.Diff},
		observer: obs,
		backoff:  cfg.Backoff,
		log:      cfg.Logger.With().Str("table", cfg.Table).Logger(),
		resync:   make(chan struct{}, 1),
		ready:    make(chan struct{}),
		snap:     NewSnapshot[T](),
	}
}

// Run keeps the snapshot live until ctx is cancelled.
func (s *Syncer[T]) Run(ctx context.Context) {
	attempt := 0
	for {
		loaded, err := s.session(ctx)
		if ctx.Err() != nil {
			s.setStatus(false, nil)
			return
		}
		if errors.Is(err, errResync) {
			s.log.Info().Msg("reloading snapshot on request")
			continue
		}

		s.setStatus(false, err)
		if loaded {
			attempt = 0
		}
		attempt++
		delay := s.backoff.Delay(attempt)
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("change feed lost, snapshot degraded")
		if !changefeed.Wait(ctx, delay) {
			s.setStatus(false, nil)
			return
		}
	}
}

// session runs one subscribe/load/apply cycle. loaded reports whether it got as far as a baseline.
func (s *Syncer[T]) session(ctx context.Context) (loaded bool, err error) {
	sub, err := s.source.Subscribe(ctx, s.table)
	if err != nil {
		return false, err
	}
	defer sub.Close()

	records, err := s.load(ctx)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", s.table, err)
	}
	s.reset(NewSnapshot(records...))
	s.log.Info().Int("records", len(records)).Msg("snapshot loaded")

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case <-s.resync:
			return true, errResync
		case raw, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return true, err
				}
				return true, changefeed.ErrTransportDisconnected
			}
			if raw.Operation == changefeed.OpReset {
				s.log.Info().Msg("upstream feed was reset")
				return true, errResync
			}
			ev, err := Decode[T](raw, s.table)
			if err != nil {
				s.log.Warn().Err(err).Str("operation", raw.Operation).Msg("rejecting change event")
				continue
			}
			s.apply(ev)
		}
	}
}

func (s *Syncer[T]) reset(snap Snapshot[T]) {
	s.mu.Lock()
	s.snap = snap
	s.healthy = true
	s.lastErr = nil
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.observer.FeedStatus(s.table, true, nil)
	s.observer.SnapshotChanged(s.table)
}

func (s *Syncer[T]) apply(ev Event[T]) {
	s.mu.Lock()
	next, events, outcome := s.engine.Apply(s.snap, ev)
	s.snap = next
	s.mu.Unlock()

	s.log.Debug().Str("operation", string(ev.Op)).Str("id", ev.RecordID()).Str("outcome", string(outcome)).Msg("change applied")
	if outcome.Changed() {
		s.observer.SnapshotChanged(s.table)
	}
	if len(events) > 0 {
		s.observer.Notify(s.table, events)
	}
}

func (s *Syncer[T]) setStatus(healthy bool, err error) {
	s.mu.Lock()
	changed := s.healthy != healthy || !errors.Is(s.lastErr, err)
	s.healthy = healthy
	s.lastErr = err
	s.mu.Unlock()
	if changed {
		s.observer.FeedStatus(s.table, healthy, err)
	}
}

// Resync asks the running session to drop its incremental state and reload.
func (s *Syncer[T]) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Ready is closed once the first baseline has been loaded.
func (s *Syncer[T]) Ready() <-chan struct{} { return s.ready }

func (s *Syncer[T]) Table() string { return s.table }

// Snapshot returns the current snapshot. It is immutable and safe to keep.
func (s *Syncer[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Syncer[T]) GetAll() []T {
	return s.Snapshot().All()
}

func (s *Syncer[T]) GetByID(id string) (T, bool) {
	return s.Snapshot().Get(id)
}

// Healthy is false while the feed is down; the snapshot may then be stale.
func (s *Syncer[T]) Healthy() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy, s.lastErr
}
