package reconcile

import (
	"testing"
	"time"

	"opsboard/internal/approval"
	"opsboard/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvals = "approval_requests"

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newEngine() Engine[model.ApprovalRequest] {
	return Engine[model.ApprovalRequest]{Diff: approval.Diff}
}

func submitted(t *testing.T, at time.Time) model.ApprovalRequest {
	t.Helper()
	r, err := approval.Submit("E1", approval.SubmitPayload{
		Kind:      model.KindInventory,
		Quantity:  100,
		UnitPrice: decimal.NewFromInt(50),
	}, at)
	require.NoError(t, err)
	return r
}

func insertOf(r model.ApprovalRequest) Event[model.ApprovalRequest] {
	return Event[model.ApprovalRequest]{Table: approvals, Op: OpInsert, After: &r}
}

func updateOf(before, after model.ApprovalRequest) Event[model.ApprovalRequest] {
	return Event[model.ApprovalRequest]{Table: approvals, Op: OpUpdate, Before: &before, After: &after}
}

func deleteOf(r model.ApprovalRequest) Event[model.ApprovalRequest] {
	return Event[model.ApprovalRequest]{Table: approvals, Op: OpDelete, Before: &r}
}

func TestApply_InsertIsIdempotent(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)

	once, events, outcome := e.Apply(NewSnapshot[model.ApprovalRequest](), insertOf(r))
	require.Equal(t, OutcomeInserted, outcome)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRequestSubmitted, events[0].Type)

	twice, events, outcome := e.Apply(once, insertOf(r))
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Empty(t, events)
	assert.Equal(t, once.All(), twice.All())
	assert.Equal(t, 1, twice.Len())
}

func TestApply_UpdateIsIdempotent(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)
	managed, err := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))
	require.NoError(t, err)

	base := NewSnapshot(r)
	once, events, _ := e.Apply(base, updateOf(r, managed))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventManagerApproved, events[0].Type)

	twice, events, outcome := e.Apply(once, updateOf(r, managed))
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Empty(t, events)
	assert.Equal(t, once.All(), twice.All())
}

func TestApply_OlderUpdateIsDiscarded(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)
	managed, _ := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))
	approved, _ := approval.ApproveAsProjectManager(managed, "PM1", t0.Add(2*time.Minute))

	s := NewSnapshot(approved)
	next, events, outcome := e.Apply(s, updateOf(r, managed))
	assert.Equal(t, OutcomeStale, outcome)
	assert.Empty(t, events)
	held, _ := next.Get(r.RecordID())
	assert.Equal(t, model.StatusApproved, held.Status)
}

func TestApply_LateApprovalAfterRejection(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)

	// a manager approval raced with a rejection; the rejection won and was delivered first
	lateApproval, err := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))
	require.NoError(t, err)
	rejected, err := approval.Reject(r, "M1", "duplicate", t0.Add(2*time.Minute))
	require.NoError(t, err)

	s, _, _ := e.Apply(NewSnapshot[model.ApprovalRequest](), insertOf(r))
	s, events, _ := e.Apply(s, updateOf(r, rejected))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRejected, events[0].Type)

	s, events, outcome := e.Apply(s, updateOf(r, lateApproval))
	assert.Equal(t, OutcomeStale, outcome)
	assert.Empty(t, events)

	final, ok := s.Get(r.RecordID())
	require.True(t, ok)
	assert.Equal(t, model.StatusRejected, final.Status)
	assert.False(t, final.ManagerApproved)
}

func TestApply_UpdateOfUnknownIdIsInsert(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)
	managed, _ := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))

	s, events, outcome := e.Apply(NewSnapshot[model.ApprovalRequest](), updateOf(r, managed))
	assert.Equal(t, OutcomeInserted, outcome)
	require.Len(t, events, 1, "diffed against before, so only the approval is reported")
	assert.Equal(t, model.EventManagerApproved, events[0].Type)
	_, ok := s.Get(r.RecordID())
	assert.True(t, ok)
}

func TestApply_InsertReplayOfNewerVersionMerges(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)
	managed, _ := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))

	s := NewSnapshot(r)
	s, events, outcome := e.Apply(s, insertOf(managed))
	assert.Equal(t, OutcomeReplaced, outcome)
	require.Len(t, events, 1)
	held, _ := s.Get(r.RecordID())
	assert.True(t, held.ManagerApproved)
}

func TestApply_Delete(t *testing.T) {
	e := newEngine()
	a, b := submitted(t, t0), submitted(t, t0.Add(time.Second))
	s := NewSnapshot(a, b)

	s, events, outcome := e.Apply(s, deleteOf(a))
	assert.Equal(t, OutcomeRemoved, outcome)
	assert.Empty(t, events)
	assert.Equal(t, 1, s.Len())

	s2, _, outcome := e.Apply(s, deleteOf(a))
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, s.All(), s2.All())
}

func TestApply_DeleteIsNotUndoneByReplays(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)
	managed, err := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))
	require.NoError(t, err)

	s := NewSnapshot[model.ApprovalRequest]()
	s, _, _ = e.Apply(s, insertOf(r))
	s, _, _ = e.Apply(s, updateOf(r, managed))
	s, _, outcome := e.Apply(s, deleteOf(managed))
	require.Equal(t, OutcomeRemoved, outcome)

	for _, ev := range []Event[model.ApprovalRequest]{updateOf(r, managed), insertOf(r)} {
		var events []model.DomainEvent
		s, events, outcome = e.Apply(s, ev)
		assert.Equal(t, OutcomeStale, outcome)
		assert.Empty(t, events)
		_, held := s.Get(r.RecordID())
		assert.False(t, held)
	}

	deletedAt, ok := s.DeletedAt(r.RecordID())
	require.True(t, ok)
	assert.True(t, deletedAt.Equal(managed.Version()))

	// a fresh load forgets the tombstone
	_, ok = NewSnapshot(r).DeletedAt(r.RecordID())
	assert.False(t, ok)
}

func TestApply_DeleteBeforeInsertKeepsRowOut(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)

	s, _, outcome := e.Apply(NewSnapshot[model.ApprovalRequest](), deleteOf(r))
	assert.Equal(t, OutcomeIgnored, outcome)

	s, _, outcome = e.Apply(s, insertOf(r))
	assert.Equal(t, OutcomeStale, outcome)
	assert.Equal(t, 0, s.Len())
}

func TestApply_DoesNotMutateInputSnapshot(t *testing.T) {
	e := newEngine()
	r := submitted(t, t0)
	managed, _ := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))

	before := NewSnapshot(r)
	_, _, _ = e.Apply(before, updateOf(r, managed))
	held, _ := before.Get(r.RecordID())
	assert.False(t, held.ManagerApproved)
}

func TestApply_CommutesAcrossIds(t *testing.T) {
	e := newEngine()
	a := submitted(t, t0)
	b := submitted(t, t0.Add(time.Second))
	c := submitted(t, t0.Add(2*time.Second))
	aManaged, _ := approval.ApproveAsManager(a, "M1", t0.Add(time.Minute))
	bRejected, _ := approval.Reject(b, "M1", "", t0.Add(time.Minute))

	// per-id order is kept inside each group, groups are interleaved in every order
	groups := [][]Event[model.ApprovalRequest]{
		{insertOf(a), updateOf(a, aManaged)},
		{insertOf(b), updateOf(b, bRejected)},
		{insertOf(c), deleteOf(c)},
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	var want []model.ApprovalRequest
	for i, order := range orders {
		s := NewSnapshot[model.ApprovalRequest]()
		for _, g := range order {
			for _, ev := range groups[g] {
				s, _, _ = e.Apply(s, ev)
			}
		}
		if i == 0 {
			want = s.All()
			require.Len(t, want, 2)
			continue
		}
		assert.Equal(t, want, s.All(), "order %v", order)
	}
}

func TestSnapshot_AllOrdering(t *testing.T) {
	same := t0
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	older := model.ApprovalRequest{ID: uuid.New(), CreatedAt: t0.Add(-time.Hour), UpdatedAt: t0}
	a := model.ApprovalRequest{ID: idA, CreatedAt: same, UpdatedAt: same}
	b := model.ApprovalRequest{ID: idB, CreatedAt: same, UpdatedAt: same}

	all := NewSnapshot(older, b, a).All()
	require.Len(t, all, 3)
	assert.Equal(t, idA, all[0].ID)
	assert.Equal(t, idB, all[1].ID)
	assert.Equal(t, older.ID, all[2].ID)
}

func TestNewSnapshot_KeepsNewestDuplicate(t *testing.T) {
	r := submitted(t, t0)
	managed, _ := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))

	s := NewSnapshot(managed, r)
	held, _ := s.Get(r.RecordID())
	assert.True(t, held.ManagerApproved)
	assert.Equal(t, 1, s.Len())
}
