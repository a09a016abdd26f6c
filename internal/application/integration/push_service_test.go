package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/integration"
)

func seedOrder(t *testing.T, f *fixture, id, code string) integration.EntityKey {
	t.Helper()
	result, err := f.coordinator.ApplyInbound(context.Background(), orderRecord(id, code, ""))
	require.NoError(t, err)
	require.Equal(t, integration.OutcomeCreated, result.Outcome)
	return result.Key
}

func TestPushService_InboundChangesAreNotEchoed(t *testing.T) {
	f := newFixture(t)
	key := seedOrder(t, f, "500", "1")

	_, err := f.coordinator.ApplyInbound(context.Background(), orderRecord("500", "7", ""))
	require.NoError(t, err)

	assert.Equal(t, 2, f.bus.count(integration.EventTypeEntityChanged))
	f.orders.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, f.store.mustGet(t, key).LoopGuard)
}

func TestPushService_PushesLocalEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := seedOrder(t, f, "501", "7")

	f.orders.On("Push", mock.Anything, integration.EntityTypeOrder, "501", mock.MatchedBy(func(req integration.PushRequest) bool {
		return req.Status == integration.OrderStatusReadyForFulfillment && req.RemoteStatusCode == "9"
	})).Return(&integration.PushResult{ExternalID: "501", Accepted: true}, nil).Once()

	entity, err := f.edits.UpdateLocal(ctx, key, nil, integration.OrderStatusReadyForFulfillment)
	require.NoError(t, err)
	assert.Equal(t, integration.OrderStatusReadyForFulfillment, entity.CanonicalStatus)

	stored := f.store.mustGet(t, key)
	require.NotNil(t, stored.ModifiedAt)
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, stored.LastSyncedAt.After(*stored.ModifiedAt), "a confirmed push moves lastSyncedAt past modifiedAt")
	assert.False(t, stored.NeedsPush())

	// Nothing left to push
	outcome, err := f.push.PushEntity(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, PushOutcomeSkippedNotModified, outcome)
	f.orders.AssertExpectations(t)
}

func TestPushService_LoopGuardBlocksPush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := seedOrder(t, f, "502", "1")

	e := f.store.mustGet(t, key)
	e.ApplyLocalEdit(nil, integration.OrderStatusCancelled, f.clock.Now())
	e.LoopGuard = true
	require.NoError(t, f.store.SaveBatch(ctx, []*integration.SyncEntity{e}))

	outcome, err := f.push.PushEntity(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, PushOutcomeSkippedLoopGuard, outcome)
	f.orders.AssertNotCalled(t, "Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPushService_FailureCountsTowardCircuitBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := seedOrder(t, f, "503", "1")

	f.orders.On("Push", mock.Anything, integration.EntityTypeOrder, "503", mock.Anything).
		Return(nil, integration.NewHTTPError("update order", 502, "bad gateway")).Once()

	_, err := f.edits.UpdateLocal(ctx, key, map[string]any{"due_date": "2026-11-01"}, "")
	require.NoError(t, err)

	stored := f.store.mustGet(t, key)
	assert.Equal(t, integration.SyncStatusError, stored.SyncStatus)
	assert.Equal(t, 1, stored.ConsecutiveErrorCount)
	assert.True(t, stored.NeedsPush(), "unconfirmed edit stays pending")
	assert.Equal(t, "2026-11-01", stored.Fields["due_date"])

	// The sweep retries it
	f.orders.On("Push", mock.Anything, integration.EntityTypeOrder, "503", mock.Anything).
		Return(&integration.PushResult{ExternalID: "503", Accepted: true}, nil).Once()

	n, err := f.push.SweepPending(ctx, integration.EntityTypeOrder)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored = f.store.mustGet(t, key)
	assert.Equal(t, integration.SyncStatusSynced, stored.SyncStatus)
	assert.Zero(t, stored.ConsecutiveErrorCount)
	assert.False(t, stored.NeedsPush())
	f.orders.AssertExpectations(t)
}

func TestPushService_UnsupportedPushIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := integration.EntityKey{EntityType: integration.EntityTypeConversation, AccountID: testAccount, ExternalID: "c-1"}

	_, err := f.coordinator.ApplyInbound(ctx, &integration.RemoteRecord{
		ExternalID: "c-1",
		EntityType: integration.EntityTypeConversation,
		AccountID:  testAccount,
		StatusCode: "open",
		Fields:     map[string]any{"subject": "Artwork question"},
	})
	require.NoError(t, err)

	f.messaging.On("Push", mock.Anything, integration.EntityTypeConversation, "c-1", mock.Anything).
		Return(nil, integration.ErrPushNotSupported).Once()

	_, err = f.edits.UpdateLocal(ctx, key, nil, integration.ConversationStatusResolved)
	require.NoError(t, err)

	stored := f.store.mustGet(t, key)
	assert.Zero(t, stored.ConsecutiveErrorCount)
	f.messaging.AssertExpectations(t)
}

func TestLocalEditService_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := seedOrder(t, f, "504", "1")

	_, err := f.edits.UpdateLocal(ctx, key, nil, "SHIPPED_BY_PIGEON")
	assert.ErrorIs(t, err, integration.ErrInvalidStatus)

	_, err = f.edits.UpdateLocal(ctx, orderKey("missing"), nil, integration.OrderStatusNew)
	assert.ErrorIs(t, err, integration.ErrEntityNotFound)

	// Fields outside the allow-list are dropped, leaving nothing to save
	writes := f.store.businessWrites
	_, err = f.edits.UpdateLocal(ctx, key, map[string]any{"internal_note": "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, writes, f.store.businessWrites)
	assert.Equal(t, 0, f.bus.count(integration.EventTypeEntityModified))

	_, err = f.coordinator.MarkGone(ctx, key)
	require.NoError(t, err)
	_, err = f.edits.UpdateLocal(ctx, key, nil, integration.OrderStatusCancelled)
	assert.ErrorIs(t, err, integration.ErrEntityGone)
}
