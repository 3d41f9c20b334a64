package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"opsboard/internal/changefeed"
	"opsboard/internal/model"

	"github.com/google/uuid"
)

// Operation is the closed set of row operations a change event can carry.
type Operation string

const (
	OpInsert Operation = changefeed.OpInsert
	OpUpdate Operation = changefeed.OpUpdate
	OpDelete Operation = changefeed.OpDelete
)

// Event is a decoded change event. Before is nil for inserts, After is nil for deletes.
type Event[T model.Record] struct {
	Table  string
	Op     Operation
	Before *T
	After  *T
}

// RecordID is the id of the row the event is about.
func (e Event[T]) RecordID() string {
	if e.After != nil {
		return (*e.After).RecordID()
	}
	if e.Before != nil {
		return (*e.Before).RecordID()
	}
	return ""
}

var ErrMalformedEvent = errors.New("malformed change event")

// Decode validates a raw feed event for table and turns it into a typed Event.
// Anything that does not fit the insert/update/delete shapes is rejected here, before
// it can reach the engine.
func Decode[T model.Record](raw changefeed.RawEvent, table string) (Event[T], error) {
	if raw.Table != table {
		return Event[T]{}, fmt.Errorf("%w: table %q, want %q", ErrMalformedEvent, raw.Table, table)
	}
	op := Operation(strings.ToLower(strings.TrimSpace(raw.Operation)))
	switch op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Event[T]{}, fmt.Errorf("%w: unknown operation %q", ErrMalformedEvent, raw.Operation)
	}

	before, err := decodeRow[T](raw.Before)
	if err != nil {
		return Event[T]{}, fmt.Errorf("%w: before: %v", ErrMalformedEvent, err)
	}
	after, err := decodeRow[T](raw.After)
	if err != nil {
		return Event[T]{}, fmt.Errorf("%w: after: %v", ErrMalformedEvent, err)
	}

	switch {
	case op == OpDelete && before == nil:
		return Event[T]{}, fmt.Errorf("%w: delete without before", ErrMalformedEvent)
	case op != OpDelete && after == nil:
		return Event[T]{}, fmt.Errorf("%w: %s without after", ErrMalformedEvent, op)
	case before != nil && after != nil && (*before).RecordID() != (*after).RecordID():
		return Event[T]{}, fmt.Errorf("%w: before and after ids differ", ErrMalformedEvent)
	}
	if op == OpInsert {
		before = nil
	}
	if op == OpDelete {
		after = nil
	}
	return Event[T]{Table: table, Op: op, Before: before, After: after}, nil
}

func decodeRow[T model.Record](data json.RawMessage) (*T, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	row := new(T)
	if err := json.Unmarshal(data, row); err != nil {
		return nil, err
	}
	if id := (*row).RecordID(); id == "" || id == uuid.Nil.String() {
		return nil, errors.New("missing id")
	}
	if n, ok := any(row).(interface{ Normalize() }); ok {
		n.Normalize()
	}
	return row, nil
}
