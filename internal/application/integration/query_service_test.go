package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
)

func newQueryFixture(t *testing.T) (*fixture, *SyncQueryService) {
	t.Helper()
	f := newFixture(t)
	return f, NewSyncQueryService(f.registry, f.store, f.watermarks, f.runs)
}

func TestSyncQueryService_Key(t *testing.T) {
	_, svc := newQueryFixture(t)

	key, err := svc.Key(integration.EntityTypeProof, "p-7")
	require.NoError(t, err)
	assert.Equal(t, integration.EntityKey{EntityType: integration.EntityTypeProof, AccountID: testAccount, ExternalID: "p-7"}, key)

	_, err = svc.Key(integration.EntityType("invoice"), "1")
	assert.ErrorIs(t, err, integration.ErrAdapterNotFound)
}

func TestSyncQueryService_EntitiesAfterSync(t *testing.T) {
	f, svc := newQueryFixture(t)
	ctx := context.Background()

	f.orders.On("FetchPage", mock.Anything, integration.EntityTypeOrder, "", 100).
		Return(onePage(orderRecord("9001", "7", "In Production"), orderRecord("9002", "7", "In Production")), nil).Once()
	_, err := f.coordinator.FullSync(ctx, integration.EntityTypeOrder)
	require.NoError(t, err)

	t.Run("get one", func(t *testing.T) {
		got, err := svc.GetEntity(ctx, integration.EntityTypeOrder, "9001")
		require.NoError(t, err)
		assert.Equal(t, "9001", got.ExternalID)
		assert.Equal(t, integration.OrderStatusInProduction, got.CanonicalStatus)
		assert.Equal(t, integration.SyncStatusSynced, got.SyncStatus)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := svc.GetEntity(ctx, integration.EntityTypeOrder, "404")
		assert.ErrorIs(t, err, integration.ErrEntityNotFound)
	})

	t.Run("list by status", func(t *testing.T) {
		items, total, err := svc.ListEntities(ctx, integration.EntityTypeOrder, ListEntitiesRequest{SyncStatus: integration.SyncStatusSynced})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, items, 2)
		assert.Equal(t, "9001", items[0].ExternalID)

		items, total, err = svc.ListEntities(ctx, integration.EntityTypeOrder, ListEntitiesRequest{SyncStatus: integration.SyncStatusError})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})

	t.Run("watermark", func(t *testing.T) {
		wm, err := svc.GetWatermark(ctx, integration.EntityTypeOrder)
		require.NoError(t, err)
		assert.Equal(t, int64(9002), wm.HighID)
		assert.NotNil(t, wm.FullSyncCompletedAt)

		_, err = svc.GetWatermark(ctx, integration.EntityTypeProof)
		assert.ErrorIs(t, err, integration.ErrWatermarkNotFound)
	})

	t.Run("runs", func(t *testing.T) {
		runs, err := svc.ListRuns(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, integration.SyncModeFull, runs[0].Mode)
		assert.Equal(t, 2, runs[0].Summary.Created)
	})
}

func TestSyncQueryService_ListRunsClampsLimit(t *testing.T) {
	f, svc := newQueryFixture(t)
	ctx := context.Background()

	for range 60 {
		run := integration.NewSyncRun(integration.EntityTypeOrder, testAccount, integration.SyncModeIncremental)
		run.Finish(nil, false)
		require.NoError(t, f.runs.Save(ctx, run))
	}

	runs, err := svc.ListRuns(ctx, integration.EntityTypeOrder, 1000)
	require.NoError(t, err)
	assert.Len(t, runs, 50)

	runs, err = svc.ListRuns(ctx, integration.EntityTypeOrder, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}
