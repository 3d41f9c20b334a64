package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"opsboard/internal/approval"
	"opsboard/internal/database"
	"opsboard/internal/model"
	"opsboard/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedRequest(t *testing.T, repo ApprovalRepository, requester string, kind model.Kind, at time.Time) model.ApprovalRequest {
	t.Helper()
	r, err := approval.Submit(requester, approval.SubmitPayload{
		Kind:      kind,
		Title:     "Pallets",
		Quantity:  100,
		UnitPrice: decimal.NewFromInt(50),
	}, at)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &r))
	return r
}

func TestApprovalRepository_CreateAndFind(t *testing.T) {
	repo := NewApprovalRepository(newTestDB(t))
	r := seedRequest(t, repo, "E1", model.KindInventory, t0)

	got, err := repo.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.True(t, decimal.NewFromInt(5000).Equal(got.ComputedTotal), "computed total is derived on read")
	assert.True(t, r.UpdatedAt.Equal(got.UpdatedAt))
	assert.NoError(t, got.Validate())

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApprovalRepository_ListFilters(t *testing.T) {
	repo := NewApprovalRepository(newTestDB(t))
	seedRequest(t, repo, "E1", model.KindInventory, t0)
	seedRequest(t, repo, "E1", model.KindProcurement, t0.Add(time.Minute))
	latest := seedRequest(t, repo, "E2", model.KindProcurement, t0.Add(2*time.Minute))

	all, total, err := repo.List(context.Background(), ApprovalFilter{}, pagination.New(1, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, all, 2)
	assert.Equal(t, latest.ID, all[0].ID)

	rest, _, err := repo.List(context.Background(), ApprovalFilter{}, pagination.New(2, 2))
	require.NoError(t, err)
	require.Len(t, rest, 1, "the second page holds what the first left over")
	assert.NotContains(t, []uuid.UUID{all[0].ID, all[1].ID}, rest[0].ID)

	mine, total, err := repo.List(context.Background(), ApprovalFilter{RequestedBy: "E1", Kind: "procurement"}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mine, 1)

	everything, err := repo.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, everything, 3)
}

func TestApprovalRepository_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewApprovalRepository(newTestDB(t))
	r := seedRequest(t, repo, "E1", model.KindInventory, t0)

	next, err := approval.ApproveAsManager(r, "M1", t0.Add(time.Minute))
	require.NoError(t, err)
	guard := approval.Guard(approval.ActionApproveManager, next)
	changes := approval.Changes(approval.ActionApproveManager, next)

	require.NoError(t, repo.CompareAndSwap(ctx, r.ID, guard, changes))
	assert.ErrorIs(t, repo.CompareAndSwap(ctx, r.ID, guard, changes), ErrConflict, "the guard no longer matches")

	got, err := repo.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.ManagerApproved)
	assert.Equal(t, "M1", *got.ManagerApprovedBy)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.NoError(t, got.Validate())
}

func TestApprovalRepository_RejectedRowBlocksApproval(t *testing.T) {
	ctx := context.Background()
	repo := NewApprovalRepository(newTestDB(t))
	r := seedRequest(t, repo, "E1", model.KindInventory, t0)

	rejected, err := approval.Reject(r, "M1", "over budget", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.CompareAndSwap(ctx, r.ID, approval.Guard(approval.ActionReject, rejected), approval.Changes(approval.ActionReject, rejected)))

	// an approval computed from the pre-rejection copy
	late, err := approval.ApproveAsManager(r, "M2", t0.Add(2*time.Minute))
	require.NoError(t, err)
	err = repo.CompareAndSwap(ctx, r.ID, approval.Guard(approval.ActionApproveManager, late), approval.Changes(approval.ActionApproveManager, late))
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repo.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.False(t, got.ManagerApproved)
	assert.Equal(t, model.StageManager, got.RejectedStage)
}

func TestTransactionManager_RollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewApprovalRepository(db)
	audits := NewAuditRepository(db)
	tx := NewTransactionManager(db)

	r, err := approval.Submit("E1", approval.SubmitPayload{Kind: model.KindInventory, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}, t0)
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := repo.Create(txCtx, &r); err != nil {
			return err
		}
		if err := audits.Log(txCtx, &model.AuditLog{Actor: "E1", Action: model.ActionSubmitRequest, EntityID: r.RecordID()}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.FindByID(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	logs, total, err := audits.List(ctx, "", pagination.New(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, logs)
}

func TestTransactionManager_NestedCallJoinsOuter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewApprovalRepository(db)
	audits := NewAuditRepository(db)
	tx := NewTransactionManager(db)

	r, err := approval.Submit("E1", approval.SubmitPayload{Kind: model.KindInventory, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}, t0)
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = tx.RunInTx(ctx, func(outer context.Context) error {
		if err := repo.Create(outer, &r); err != nil {
			return err
		}
		inner := tx.RunInTx(outer, func(txCtx context.Context) error {
			return audits.Log(txCtx, &model.AuditLog{Actor: "E1", Action: model.ActionSubmitRequest, EntityID: r.RecordID()})
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// the inner call committed nothing on its own
	_, err = repo.FindByID(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, total, err := audits.List(ctx, r.RecordID(), pagination.New(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
}
