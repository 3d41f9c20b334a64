// Package changefeed delivers row change events from the store to dashboards.
//
// A Source hands out Subscriptions; a Subscription is a channel of RawEvents that is
// closed when the consumer cancels it or the transport drops. Err tells the two apart.
package changefeed

import (
	"encoding/json"
	"errors"
)

var (
	ErrTransportDisconnected = errors.New("change feed disconnected")
	ErrSlowConsumer          = errors.New("change feed subscriber fell behind")
)

// Operation names as they appear on the wire.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"

	// OpReset carries no row. It tells subscribers that events may have been lost
	// upstream and the table has to be reloaded.
	OpReset = "reset"
)

// RawEvent is the wire shape produced by the row trigger:
// {"table": ..., "operation": "insert"|"update"|"delete", "before": row|null, "after": row|null}.
type RawEvent struct {
	Table     string          `json:"table"`
	Operation string          `json:"operation"`
	Before    json.RawMessage `json:"before"`
	After     json.RawMessage `json:"after"`
}

// NewRawEvent encodes before/after rows into a RawEvent. Nil rows become JSON null.
func NewRawEvent(table, operation string, before, after any) (RawEvent, error) {
	ev := RawEvent{Table: table, Operation: operation}
	var err error
	if ev.Before, err = encodeRow(before); err != nil {
		return RawEvent{}, err
	}
	if ev.After, err = encodeRow(after); err != nil {
		return RawEvent{}, err
	}
	return ev, nil
}

func encodeRow(row any) (json.RawMessage, error) {
	if row == nil {
		return nil, nil
	}
	return json.Marshal(row)
}

// ResetEvent is the control event a relay sends after (re)subscribing to its source.
func ResetEvent(table string) RawEvent {
	return RawEvent{Table: table, Operation: OpReset}
}

// Channel is the LISTEN/NOTIFY and pub/sub channel name for a table.
func Channel(table string) string {
	return table + "_changes"
}
