package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"opsboard/internal/changefeed"
	"opsboard/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawOf(t *testing.T, op string, before, after *model.ApprovalRequest) changefeed.RawEvent {
	t.Helper()
	var b, a any
	if before != nil {
		b = before
	}
	if after != nil {
		a = after
	}
	raw, err := changefeed.NewRawEvent(approvals, op, b, a)
	require.NoError(t, err)
	return raw
}

func TestDecode_ValidShapes(t *testing.T) {
	r := submitted(t, t0)

	ev, err := Decode[model.ApprovalRequest](rawOf(t, "insert", nil, &r), approvals)
	require.NoError(t, err)
	assert.Equal(t, OpInsert, ev.Op)
	assert.Nil(t, ev.Before)
	require.NotNil(t, ev.After)
	assert.Equal(t, r.ID, ev.After.ID)
	assert.True(t, r.UpdatedAt.Equal(ev.After.UpdatedAt))

	ev, err = Decode[model.ApprovalRequest](rawOf(t, "UPDATE", &r, &r), approvals)
	require.NoError(t, err)
	assert.Equal(t, OpUpdate, ev.Op)
	assert.NotNil(t, ev.Before)

	ev, err = Decode[model.ApprovalRequest](rawOf(t, "delete", &r, nil), approvals)
	require.NoError(t, err)
	assert.Equal(t, OpDelete, ev.Op)
	assert.Nil(t, ev.After)
	assert.Equal(t, r.RecordID(), ev.RecordID())
}

func TestDecode_RecomputesDerivedFields(t *testing.T) {
	r := submitted(t, t0)
	// a row as the database trigger emits it: no computed_total, status out of date
	row := map[string]any{
		"id":                          r.ID.String(),
		"kind":                        "inventory",
		"requested_by":                "E1",
		"quantity":                    4,
		"unit_price":                  12.5,
		"manager_approved":            true,
		"manager_approved_by":         "M1",
		"manager_approved_at":         t0.Add(time.Minute).Format(time.RFC3339Nano),
		"project_manager_approved":    true,
		"project_manager_approved_by": "PM1",
		"project_manager_approved_at": t0.Add(2 * time.Minute).Format(time.RFC3339Nano),
		"status":                      "pending",
		"created_at":                  "2025-03-01T09:00:00.000000+00:00",
		"updated_at":                  "2025-03-01T09:02:00.000000+00:00",
	}
	after, err := json.Marshal(row)
	require.NoError(t, err)

	ev, err := Decode[model.ApprovalRequest](changefeed.RawEvent{Table: approvals, Operation: "insert", After: after}, approvals)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(ev.After.ComputedTotal))
	assert.Equal(t, model.StatusApproved, ev.After.Status)
}

func TestDecode_RejectsMalformed(t *testing.T) {
	r := submitted(t, t0)
	other := submitted(t, t0)

	tests := []struct {
		name string
		raw  changefeed.RawEvent
	}{
		{"unknown operation", rawOf(t, "upsert", nil, &r)},
		{"wrong table", changefeed.RawEvent{Table: "purchase_orders", Operation: "insert", After: rawOf(t, "insert", nil, &r).After}},
		{"insert without after", rawOf(t, "insert", &r, nil)},
		{"update without after", rawOf(t, "update", &r, nil)},
		{"delete without before", rawOf(t, "delete", nil, &r)},
		{"ids differ", rawOf(t, "update", &r, &other)},
		{"not json", changefeed.RawEvent{Table: approvals, Operation: "insert", After: json.RawMessage(`[1,2]`)}},
		{"missing id", changefeed.RawEvent{Table: approvals, Operation: "insert", After: json.RawMessage(`{"kind":"inventory"}`)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode[model.ApprovalRequest](tc.raw, approvals)
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}
