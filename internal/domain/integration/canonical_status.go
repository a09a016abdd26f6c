package integration

// CanonicalStatus is the local, provider-independent status of a synced entity
type CanonicalStatus string

// Order statuses
const (
	OrderStatusNew                 CanonicalStatus = "NEW"
	OrderStatusProcessing          CanonicalStatus = "PROCESSING"
	OrderStatusInProduction        CanonicalStatus = "IN_PRODUCTION"
	OrderStatusReadyForFulfillment CanonicalStatus = "READY_FOR_FULFILLMENT"
	OrderStatusFulfilled           CanonicalStatus = "FULFILLED"
	OrderStatusCompleted           CanonicalStatus = "COMPLETED"
	OrderStatusCancelled           CanonicalStatus = "CANCELLED"
	OrderStatusRefunded            CanonicalStatus = "REFUNDED"
)

// Quote statuses
const (
	QuoteStatusDraft     CanonicalStatus = "DRAFT"
	QuoteStatusSent      CanonicalStatus = "SENT"
	QuoteStatusAccepted  CanonicalStatus = "ACCEPTED"
	QuoteStatusDeclined  CanonicalStatus = "DECLINED"
	QuoteStatusExpired   CanonicalStatus = "EXPIRED"
	QuoteStatusConverted CanonicalStatus = "CONVERTED"
)

// Proof statuses
const (
	ProofStatusDraft            CanonicalStatus = "DRAFT"
	ProofStatusInReview         CanonicalStatus = "IN_REVIEW"
	ProofStatusChangesRequested CanonicalStatus = "CHANGES_REQUESTED"
	ProofStatusApproved         CanonicalStatus = "APPROVED"
	ProofStatusRejected         CanonicalStatus = "REJECTED"
)

// Conversation statuses
const (
	ConversationStatusOpen     CanonicalStatus = "OPEN"
	ConversationStatusPending  CanonicalStatus = "PENDING"
	ConversationStatusResolved CanonicalStatus = "RESOLVED"
	ConversationStatusClosed   CanonicalStatus = "CLOSED"
)

// String returns the string representation
func (s CanonicalStatus) String() string {
	return string(s)
}
