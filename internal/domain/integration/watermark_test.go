package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermark_IDFeed(t *testing.T) {
	w := NewWatermark(EntityTypeOrder, "acct-1")
	require.Equal(t, WatermarkKindID, w.Kind)
	assert.True(t, w.IsZero())

	rec := func(id string) *RemoteRecord { return &RemoteRecord{ExternalID: id} }

	assert.False(t, w.Covers(rec("10")), "empty watermark covers nothing")

	assert.True(t, w.Advance(MarkOf(w.Kind, rec("100"))))
	assert.True(t, w.Covers(rec("100")))
	assert.True(t, w.Covers(rec("99")))
	assert.False(t, w.Covers(rec("101")))
	assert.False(t, w.Covers(rec("not-numeric")))

	t.Run("never decreases", func(t *testing.T) {
		assert.False(t, w.Advance(WatermarkMark{ID: 50}))
		assert.Equal(t, int64(100), w.HighID)
		assert.False(t, w.Advance(WatermarkMark{ID: 100}))
	})
}

func TestWatermark_TimestampFeed(t *testing.T) {
	w := NewWatermark(EntityTypeConversation, "acct-1")
	require.Equal(t, WatermarkKindTimestamp, w.Kind)

	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	assert.True(t, w.Advance(WatermarkMark{Time: t1}))
	assert.False(t, w.Advance(WatermarkMark{Time: t0}))
	assert.True(t, w.HighTime.Equal(t1))

	assert.True(t, w.Covers(&RemoteRecord{RemoteUpdatedAt: &t0}))
	assert.True(t, w.Covers(&RemoteRecord{RemoteUpdatedAt: &t1}))
	later := t1.Add(time.Second)
	assert.False(t, w.Covers(&RemoteRecord{RemoteUpdatedAt: &later}))
	assert.False(t, w.Covers(&RemoteRecord{}))
}

func TestWatermark_Checkpoint(t *testing.T) {
	w := NewWatermark(EntityTypeProof, "acct-1")
	w.Checkpoint("cursor-3")
	assert.Equal(t, "cursor-3", w.ResumeCursor)

	w.CompleteFullSync(time.Now())
	assert.Empty(t, w.ResumeCursor)
	assert.NotNil(t, w.FullSyncCompletedAt)
}

func TestMaxMark(t *testing.T) {
	a := WatermarkMark{ID: 5}
	b := WatermarkMark{ID: 3, Time: time.Unix(100, 0)}
	m := MaxMark(a, b)
	assert.Equal(t, int64(5), m.ID)
	assert.Equal(t, time.Unix(100, 0), m.Time)
}

func TestAdapterRegistry(t *testing.T) {
	r := NewAdapterRegistry()
	_, err := r.ForEntity(EntityTypeOrder)
	assert.ErrorIs(t, err, ErrAdapterNotFound)
	_, err = r.ForProvider(ProviderOrderAPI)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestWebhookEvent_Validate(t *testing.T) {
	ev := WebhookEvent{
		Provider:   ProviderMessaging,
		EventID:    "evt-1",
		Action:     WebhookActionMessage,
		EntityType: EntityTypeConversation,
		AccountID:  "acct-1",
		ExternalID: "c-1",
	}
	assert.ErrorIs(t, ev.Validate(), ErrWebhookMalformed)

	ev.MessageID = "m-1"
	require.NoError(t, ev.Validate())
	assert.Equal(t, "webhook:messaging:evt-1", ev.DedupKey())
	assert.True(t, ev.IsThin())
}
