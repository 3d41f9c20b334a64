package reconcile

import (
	"sort"
	"time"

	"opsboard/internal/model"
)

// Snapshot is an immutable id-indexed set of records. Applying an event yields a new
// Snapshot, so a value handed to a reader never changes underneath it.
//
// Deleted ids leave a tombstone holding the version they were deleted at, so a
// redelivered older event cannot bring them back. A fresh load starts without tombstones.
type Snapshot[T model.Record] struct {
	byID    map[string]T
	deleted map[string]time.Time
}

// NewSnapshot indexes records by id; when an id repeats the newest version wins.
func NewSnapshot[T model.Record](records ...T) Snapshot[T] {
	byID := make(map[string]T, len(records))
	for _, r := range records {
		if held, ok := byID[r.RecordID()]; ok && held.Version().After(r.Version()) {
			continue
		}
		byID[r.RecordID()] = r
	}
	return Snapshot[T]{byID: byID}
}

func (s Snapshot[T]) Get(id string) (T, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// DeletedAt returns the version id was deleted at, if it was deleted since the last load.
func (s Snapshot[T]) DeletedAt(id string) (time.Time, bool) {
	v, ok := s.deleted[id]
	return v, ok
}

func (s Snapshot[T]) Len() int {
	return len(s.byID)
}

// All returns the records newest first, ties broken by id, so the order depends only on content.
func (s Snapshot[T]) All() []T {
	out := make([]T, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].Created(), out[j].Created()
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return out[i].RecordID() < out[j].RecordID()
	})
	return out
}

func (s Snapshot[T]) with(r T) Snapshot[T] {
	byID := make(map[string]T, len(s.byID)+1)
	for id, held := range s.byID {
		byID[id] = held
	}
	byID[r.RecordID()] = r
	return Snapshot[T]{byID: byID, deleted: s.tombstones(r.RecordID())}
}

// without removes id and records a tombstone at version.
func (s Snapshot[T]) without(id string, version time.Time) Snapshot[T] {
	byID := make(map[string]T, len(s.byID))
	for held, r := range s.byID {
		if held != id {
			byID[held] = r
		}
	}
	deleted := s.tombstones("")
	if deleted == nil {
		deleted = make(map[string]time.Time, 1)
	}
	if prev, ok := deleted[id]; !ok || version.After(prev) {
		deleted[id] = version
	}
	return Snapshot[T]{byID: byID, deleted: deleted}
}

// tombstones copies the tombstone set, leaving out drop.
func (s Snapshot[T]) tombstones(drop string) map[string]time.Time {
	if len(s.deleted) == 0 {
		return nil
	}
	out := make(map[string]time.Time, len(s.deleted))
	for id, v := range s.deleted {
		if id != drop {
			out[id] = v
		}
	}
	return out
}
