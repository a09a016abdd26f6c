package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
)

func setupSyncTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// Every pooled connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.SyncEntityModel{}, &models.WatermarkModel{}, &models.SyncRunModel{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testEntity(externalID string, status integration.CanonicalStatus) *integration.SyncEntity {
	e := integration.NewSyncEntity(integration.EntityKey{
		EntityType: integration.EntityTypeOrder,
		AccountID:  "acct-1",
		ExternalID: externalID,
	})
	e.CanonicalStatus = status
	e.RemoteStatusCode = "7"
	e.Fields = map[string]any{"order_number": "SO-" + externalID, "total": "125.5"}
	e.ChildIDs = []string{"li-1", "li-2"}
	e.SyncStatus = integration.SyncStatusSynced
	synced := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	e.LastSyncedAt = &synced
	return e
}

func TestGormSyncEntityStore_SaveAndGet(t *testing.T) {
	store := NewGormSyncEntityStore(setupSyncTestDB(t))
	ctx := context.Background()

	e := testEntity("9001", integration.OrderStatusInProduction)
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{e}))

	got, err := store.Get(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, integration.OrderStatusInProduction, got.CanonicalStatus)
	assert.Equal(t, "SO-9001", got.Fields["order_number"])
	assert.Equal(t, []string{"li-1", "li-2"}, got.ChildIDs)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, e.LastSyncedAt.Equal(*got.LastSyncedAt))

	exists, err := store.Exists(ctx, e.Key())
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.Get(ctx, integration.EntityKey{EntityType: integration.EntityTypeOrder, AccountID: "acct-1", ExternalID: "missing"})
	assert.ErrorIs(t, err, integration.ErrEntityNotFound)
}

func TestGormSyncEntityStore_SaveBatchUpsertsByKey(t *testing.T) {
	db := setupSyncTestDB(t)
	store := NewGormSyncEntityStore(db)
	ctx := context.Background()

	first := testEntity("9001", integration.OrderStatusInProduction)
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{first, testEntity("9002", integration.OrderStatusNew)}))

	// A second write for the same key updates in place
	again := testEntity("9001", integration.OrderStatusCompleted)
	again.RemoteStatusCode = "16"
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{again}))

	var count int64
	require.NoError(t, db.Model(&models.SyncEntityModel{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	got, err := store.Get(ctx, first.Key())
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "existing row keeps its id")
	assert.Equal(t, integration.OrderStatusCompleted, got.CanonicalStatus)
	assert.Equal(t, "16", got.RemoteStatusCode)
}

func TestGormSyncEntityStore_SetMetadataLeavesBusinessFields(t *testing.T) {
	store := NewGormSyncEntityStore(setupSyncTestDB(t))
	ctx := context.Background()

	e := testEntity("9001", integration.OrderStatusInProduction)
	modified := time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC)
	e.ModifiedAt = &modified
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{e}))

	later := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetMetadata(ctx, e.Key(), integration.SyncMetadata{
		SyncStatus:            integration.SyncStatusError,
		LastSyncedAt:          &later,
		SyncErrorMessage:      "remote unavailable",
		ConsecutiveErrorCount: 2,
	}))

	got, err := store.Get(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, integration.SyncStatusError, got.SyncStatus)
	assert.Equal(t, 2, got.ConsecutiveErrorCount)
	assert.True(t, later.Equal(*got.LastSyncedAt))
	require.NotNil(t, got.ModifiedAt)
	assert.True(t, modified.Equal(*got.ModifiedAt), "modified_at is business time and must not move")
	assert.Equal(t, "SO-9001", got.Fields["order_number"])

	err = store.SetMetadata(ctx, integration.EntityKey{EntityType: integration.EntityTypeOrder, AccountID: "acct-1", ExternalID: "nope"}, integration.SyncMetadata{})
	assert.ErrorIs(t, err, integration.ErrEntityNotFound)
}

func TestGormSyncEntityStore_SetMetadataBatchAndClearLoopGuard(t *testing.T) {
	store := NewGormSyncEntityStore(setupSyncTestDB(t))
	ctx := context.Background()

	a, b := testEntity("1", integration.OrderStatusNew), testEntity("2", integration.OrderStatusNew)
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{a, b}))

	require.NoError(t, store.SetMetadataBatch(ctx, map[integration.EntityKey]integration.SyncMetadata{
		a.Key(): {SyncStatus: integration.SyncStatusSynced, LoopGuard: true, LastSyncedAt: a.LastSyncedAt},
		b.Key(): {SyncStatus: integration.SyncStatusSynced, LoopGuard: true, LastSyncedAt: b.LastSyncedAt},
	}))
	got, _ := store.Get(ctx, a.Key())
	assert.True(t, got.LoopGuard)

	require.NoError(t, store.ClearLoopGuard(ctx, []integration.EntityKey{a.Key(), b.Key()}))
	for _, k := range []integration.EntityKey{a.Key(), b.Key()} {
		got, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, got.LoopGuard)
	}
}

func TestGormSyncEntityStore_ListPollable(t *testing.T) {
	store := NewGormSyncEntityStore(setupSyncTestDB(t))
	ctx := context.Background()

	active := testEntity("1", integration.OrderStatusInProduction)
	done := testEntity("2", integration.OrderStatusCompleted)
	doneButFlagged := testEntity("3", integration.OrderStatusCompleted)
	doneButFlagged.NeedsRevalidation = true
	disabled := testEntity("4", integration.OrderStatusInProduction)
	disabled.SyncStatus = integration.SyncStatusDisabled
	gone := testEntity("5", integration.OrderStatusInProduction)
	gone.SyncStatus = integration.SyncStatusGone
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{active, done, doneButFlagged, disabled, gone}))

	entities, err := store.ListPollable(ctx, integration.PollableQuery{
		EntityType:      integration.EntityTypeOrder,
		AccountID:       "acct-1",
		ExcludeStatuses: []integration.CanonicalStatus{integration.OrderStatusCompleted, integration.OrderStatusCancelled},
		Limit:           10,
	})
	require.NoError(t, err)

	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ExternalID
	}
	assert.ElementsMatch(t, []string{"1", "3"}, ids)
}

func TestGormSyncEntityStore_ListPendingPush(t *testing.T) {
	store := NewGormSyncEntityStore(setupSyncTestDB(t))
	ctx := context.Background()

	synced := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	before, after := synced.Add(-time.Hour), synced.Add(time.Hour)

	clean := testEntity("1", integration.OrderStatusInProduction)
	clean.ModifiedAt = &before
	edited := testEntity("2", integration.OrderStatusInProduction)
	edited.ModifiedAt = &after
	neverSynced := testEntity("3", integration.OrderStatusInProduction)
	neverSynced.LastSyncedAt = nil
	neverSynced.ModifiedAt = &before
	untouched := testEntity("4", integration.OrderStatusInProduction)
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{clean, edited, neverSynced, untouched}))

	pending, err := store.ListPendingPush(ctx, integration.EntityTypeOrder, 10)
	require.NoError(t, err)
	ids := make([]string, len(pending))
	for i, e := range pending {
		ids[i] = e.ExternalID
	}
	assert.Equal(t, []string{"3", "2"}, ids, "ordered by modified_at")
}

func TestGormSyncEntityStore_ListNeedingRevalidation(t *testing.T) {
	store := NewGormSyncEntityStore(setupSyncTestDB(t))
	ctx := context.Background()

	flagged := testEntity("1", integration.OrderStatusInProduction)
	flagged.NeedsRevalidation = true
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{flagged, testEntity("2", integration.OrderStatusInProduction)}))

	entities, err := store.ListNeedingRevalidation(ctx, integration.EntityTypeOrder, "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "1", entities[0].ExternalID)
}

func TestGormSyncEntityStore_List(t *testing.T) {
	store := NewGormSyncEntityStore(setupSyncTestDB(t))
	ctx := context.Background()

	var batch []*integration.SyncEntity
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		e := testEntity(id, integration.OrderStatusInProduction)
		if id == "4" || id == "5" {
			e.SyncStatus = integration.SyncStatusError
			e.ConsecutiveErrorCount = 4
		}
		batch = append(batch, e)
	}
	require.NoError(t, store.SaveBatch(ctx, batch))

	tests := []struct {
		name      string
		filter    integration.EntityFilter
		wantTotal int64
		wantLen   int
	}{
		{"all orders", integration.EntityFilter{EntityType: integration.EntityTypeOrder}, 5, 5},
		{"by sync status", integration.EntityFilter{EntityType: integration.EntityTypeOrder, SyncStatus: integration.SyncStatusError}, 2, 2},
		{"by error count", integration.EntityFilter{EntityType: integration.EntityTypeOrder, MinErrorCount: 3}, 2, 2},
		{"paged", integration.EntityFilter{EntityType: integration.EntityTypeOrder, Page: 2, PageSize: 2}, 5, 2},
		{"other type", integration.EntityFilter{EntityType: integration.EntityTypeProof}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, total, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			assert.Len(t, entities, tt.wantLen)
		})
	}

	t.Run("ordered by external id", func(t *testing.T) {
		entities, _, err := store.List(ctx, integration.EntityFilter{
			EntityType: integration.EntityTypeOrder,
			OrderBy:    "external_id",
			OrderDir:   "asc",
		})
		require.NoError(t, err)
		require.Len(t, entities, 5)
		assert.Equal(t, "1", entities[0].ExternalID)
		assert.Equal(t, "5", entities[4].ExternalID)
	})
}

func TestGormWatermarkRepository(t *testing.T) {
	repo := NewGormWatermarkRepository(setupSyncTestDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, integration.EntityTypeOrder, "acct-1")
	assert.ErrorIs(t, err, integration.ErrWatermarkNotFound)

	w := integration.NewWatermark(integration.EntityTypeOrder, "acct-1")
	w.Advance(integration.WatermarkMark{ID: 9001})
	w.Checkpoint("page-3")
	require.NoError(t, repo.Save(ctx, w))

	got, err := repo.Get(ctx, integration.EntityTypeOrder, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9001), got.HighID)
	assert.Equal(t, "page-3", got.ResumeCursor)
	assert.Equal(t, integration.WatermarkKindID, got.Kind)

	got.Advance(integration.WatermarkMark{ID: 9050})
	got.CompleteFullSync(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Save(ctx, got))

	got, err = repo.Get(ctx, integration.EntityTypeOrder, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9050), got.HighID)
	assert.Empty(t, got.ResumeCursor)
	assert.NotNil(t, got.FullSyncCompletedAt)

	proofs := integration.NewWatermark(integration.EntityTypeProof, "ws-1")
	ts := time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)
	proofs.Advance(integration.WatermarkMark{Time: ts})
	require.NoError(t, repo.Save(ctx, proofs))

	gotProofs, err := repo.Get(ctx, integration.EntityTypeProof, "ws-1")
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotProofs.HighTime))
}

func TestGormSyncRunRepository(t *testing.T) {
	repo := NewGormSyncRunRepository(setupSyncTestDB(t))
	ctx := context.Background()

	old := integration.NewSyncRun(integration.EntityTypeOrder, "acct-1", integration.SyncModeFull)
	old.StartedAt = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	old.Finish(nil, false)
	require.NoError(t, repo.Save(ctx, old))

	run := integration.NewSyncRun(integration.EntityTypeOrder, "acct-1", integration.SyncModeIncremental)
	require.NoError(t, repo.Save(ctx, run))
	run.Summary.Add(integration.OutcomeCreated)
	run.Summary.Add(integration.OutcomeErrored)
	run.Pages = 2
	run.Finish(nil, false)
	require.NoError(t, repo.Save(ctx, run))

	runs, err := repo.ListRecent(ctx, integration.EntityTypeOrder, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, integration.SyncRunStatusPartial, runs[0].Status)
	assert.Equal(t, 1, runs[0].Summary.Created)
	assert.Equal(t, 2, runs[0].Pages)

	deleted, err := repo.DeleteBefore(ctx, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
