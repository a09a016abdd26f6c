package integration

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// StatusNormalizer Tests
// ---------------------------------------------------------------------------

func TestStatusNormalizer_Normalize(t *testing.T) {
	n := DefaultStatusNormalizer()

	tests := []struct {
		name       string
		entityType EntityType
		code       string
		label      string
		want       CanonicalStatus
		source     StatusSource
	}{
		{"order code 7", EntityTypeOrder, "7", "In Production", OrderStatusInProduction, StatusSourceCode},
		{"order code 16", EntityTypeOrder, "16", "Order Completed", OrderStatusCompleted, StatusSourceCode},
		{"order name only", EntityTypeOrder, "", "order completed", OrderStatusCompleted, StatusSourceName},
		{"order name casing", EntityTypeOrder, "", "  IN   PRODUCTION ", OrderStatusInProduction, StatusSourceName},
		{"order name separators", EntityTypeOrder, "", "Ready_To-Ship", OrderStatusReadyForFulfillment, StatusSourceName},
		{"code wins over disagreeing name", EntityTypeOrder, "7", "Order Completed", OrderStatusInProduction, StatusSourceCode},
		{"unknown code falls back to name", EntityTypeOrder, "999", "Shipped", OrderStatusFulfilled, StatusSourceName},
		{"unknown order falls back to default", EntityTypeOrder, "999", "Teleported", OrderStatusNew, StatusSourceDefault},
		{"empty order", EntityTypeOrder, "", "", OrderStatusNew, StatusSourceDefault},
		{"quote accepted", EntityTypeQuote, "3", "", QuoteStatusAccepted, StatusSourceCode},
		{"quote unknown", EntityTypeQuote, "", "mystery", QuoteStatusDraft, StatusSourceDefault},
		{"proof enum", EntityTypeProof, "CHANGES_REQUESTED", "", ProofStatusChangesRequested, StatusSourceCode},
		{"proof enum lowercase", EntityTypeProof, "approved", "", ProofStatusApproved, StatusSourceCode},
		{"proof name", EntityTypeProof, "", "Awaiting Review", ProofStatusInReview, StatusSourceName},
		{"conversation snoozed", EntityTypeConversation, "snoozed", "", ConversationStatusPending, StatusSourceCode},
		{"conversation unicode fold", EntityTypeConversation, "", "CLOSED", ConversationStatusClosed, StatusSourceName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := n.NormalizeWithSource(tt.entityType, tt.code, tt.label)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, source)
			assert.Equal(t, tt.want, n.Normalize(tt.entityType, tt.code, tt.label))
		})
	}
}

func TestStatusNormalizer_Deterministic(t *testing.T) {
	n := DefaultStatusNormalizer()
	want := n.Normalize(EntityTypeOrder, "7", "In Production")

	var wg sync.WaitGroup
	results := make([]CanonicalStatus, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = n.Normalize(EntityTypeOrder, "7", "In Production")
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestStatusNormalizer_Terminal(t *testing.T) {
	n := DefaultStatusNormalizer()

	assert.True(t, n.IsTerminal(EntityTypeOrder, OrderStatusCompleted))
	assert.True(t, n.IsTerminal(EntityTypeOrder, OrderStatusRefunded))
	assert.False(t, n.IsTerminal(EntityTypeOrder, OrderStatusInProduction))
	assert.True(t, n.IsTerminal(EntityTypeQuote, QuoteStatusConverted))
	assert.True(t, n.IsTerminal(EntityTypeProof, ProofStatusApproved))
	assert.True(t, n.IsTerminal(EntityTypeConversation, ConversationStatusClosed))
	assert.False(t, n.IsTerminal(EntityTypeConversation, ConversationStatusPending))
	assert.ElementsMatch(t,
		[]CanonicalStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded},
		n.TerminalStatuses(EntityTypeOrder))
}

func TestStatusNormalizer_RemoteCodeFor(t *testing.T) {
	n := DefaultStatusNormalizer()

	code, ok := n.RemoteCodeFor(EntityTypeOrder, OrderStatusCompleted)
	require.True(t, ok)
	assert.Equal(t, "16", code)

	assert.True(t, n.IsValid(EntityTypeOrder, OrderStatusReadyForFulfillment))
	assert.False(t, n.IsValid(EntityTypeOrder, ConversationStatusResolved))

	_, ok = n.RemoteCodeFor(EntityType("unknown"), OrderStatusNew)
	assert.False(t, ok)
}
