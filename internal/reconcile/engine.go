// Package reconcile keeps a dashboard's local copy of a table in step with the change feed.
//
// Engine is the pure part: (snapshot, event) -> (snapshot, domain events). Syncer wraps it
// with the live subscription, the initial load and reconnect handling.
package reconcile

import (
	"time"

	"opsboard/internal/model"
)

// Differ derives domain events from two versions of a record; prev is nil for a record
// not held before.
type Differ[T model.Record] func(prev *T, next T) []model.DomainEvent

// Outcome says what Apply did with an event.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeReplaced  Outcome = "replaced"
	OutcomeRemoved   Outcome = "removed"
	OutcomeDuplicate Outcome = "duplicate" // same version already held
	OutcomeStale     Outcome = "stale"     // older than the held version, discarded
	OutcomeIgnored   Outcome = "ignored"   // delete of an unknown id
)

// Changed reports whether the snapshot was modified.
func (o Outcome) Changed() bool {
	return o == OutcomeInserted || o == OutcomeReplaced || o == OutcomeRemoved
}

// Engine applies decoded events to snapshots. The zero value works and derives no events.
type Engine[T model.Record] struct {
	Diff Differ[T]
}

// Apply never lets a single id move back to an older version, deleted ids included; across
// ids it makes no ordering assumption, so events for different ids commute.
func (e Engine[T]) Apply(s Snapshot[T], ev Event[T]) (Snapshot[T], []model.DomainEvent, Outcome) {
	switch ev.Op {
	case OpInsert, OpUpdate:
		if ev.After == nil {
			return s, nil, OutcomeIgnored
		}
		return e.upsert(s, ev.Before, *ev.After)
	case OpDelete:
		id := ev.RecordID()
		var version time.Time
		if ev.Before != nil {
			version = (*ev.Before).Version()
		}
		held, ok := s.Get(id)
		if ok && held.Version().After(version) {
			version = held.Version()
		}
		// the tombstone is kept even for an unknown id: its insert may still be in flight
		next := s.without(id, version)
		if !ok {
			return next, nil, OutcomeIgnored
		}
		return next, nil, OutcomeRemoved
	default:
		return s, nil, OutcomeIgnored
	}
}

// upsert covers both insert and update: a replayed insert of a known id is merged like an
// update, and an update of an unknown id (missed by the initial load) is taken as an insert.
func (e Engine[T]) upsert(s Snapshot[T], before *T, after T) (Snapshot[T], []model.DomainEvent, Outcome) {
	if deletedAt, gone := s.DeletedAt(after.RecordID()); gone && !after.Version().After(deletedAt) {
		return s, nil, OutcomeStale
	}
	held, ok := s.Get(after.RecordID())
	if !ok {
		return s.with(after), e.diff(before, after), OutcomeInserted
	}

	switch {
	case after.Version().Before(held.Version()):
		return s, nil, OutcomeStale
	case after.Version().Equal(held.Version()):
		return s, nil, OutcomeDuplicate
	}
	return s.with(after), e.diff(&held, after), OutcomeReplaced
}

func (e Engine[T]) diff(prev *T, next T) []model.DomainEvent {
	if e.Diff == nil {
		return nil
	}
	return e.Diff(prev, next)
}
