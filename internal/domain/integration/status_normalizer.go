package integration

import (
	"strings"

	"golang.org/x/text/cases"
)

// StatusMapping is the static translation table for one entity type
type StatusMapping struct {
	EntityType EntityType
	// Default is returned when neither code nor name is recognized
	Default CanonicalStatus
	// ByCode maps remote status ids (stringified) to canonical statuses
	ByCode map[string]CanonicalStatus
	// ByName maps folded remote status labels to canonical statuses
	ByName map[string]CanonicalStatus
	// Terminal lists statuses that never change again remotely
	Terminal []CanonicalStatus
	// PushCodes maps a canonical status back to the remote code used on push
	PushCodes map[CanonicalStatus]string
}

// StatusSource records which lookup produced a normalized status
type StatusSource string

const (
	StatusSourceCode    StatusSource = "code"
	StatusSourceName    StatusSource = "name"
	StatusSourceDefault StatusSource = "default"
)

// StatusNormalizer maps heterogeneous remote status vocabularies onto the
// canonical enum of each entity type. It is immutable after construction
// and safe for concurrent use.
type StatusNormalizer struct {
	mappings map[EntityType]*compiledMapping
}

type compiledMapping struct {
	def      CanonicalStatus
	byCode   map[string]CanonicalStatus
	byName   map[string]CanonicalStatus
	terminal map[CanonicalStatus]struct{}
	valid    map[CanonicalStatus]struct{}
	push     map[CanonicalStatus]string
}

// NewStatusNormalizer compiles the given mappings. Names and codes are folded
// once here so lookups only fold the incoming value.
func NewStatusNormalizer(mappings ...StatusMapping) *StatusNormalizer {
	n := &StatusNormalizer{mappings: make(map[EntityType]*compiledMapping, len(mappings))}
	for _, m := range mappings {
		c := &compiledMapping{
			def:      m.Default,
			byCode:   make(map[string]CanonicalStatus, len(m.ByCode)),
			byName:   make(map[string]CanonicalStatus, len(m.ByName)),
			terminal: make(map[CanonicalStatus]struct{}, len(m.Terminal)),
			valid:    map[CanonicalStatus]struct{}{m.Default: {}},
			push:     make(map[CanonicalStatus]string, len(m.PushCodes)),
		}
		for code, s := range m.ByCode {
			c.byCode[foldStatus(code)] = s
			c.valid[s] = struct{}{}
		}
		for name, s := range m.ByName {
			c.byName[foldStatus(name)] = s
			c.valid[s] = struct{}{}
		}
		for _, s := range m.Terminal {
			c.terminal[s] = struct{}{}
			c.valid[s] = struct{}{}
		}
		for s, code := range m.PushCodes {
			c.push[s] = code
		}
		n.mappings[m.EntityType] = c
	}
	return n
}

// Normalize returns the canonical status for a remote (code, name) pair
func (n *StatusNormalizer) Normalize(entityType EntityType, remoteCode, remoteName string) CanonicalStatus {
	s, _ := n.NormalizeWithSource(entityType, remoteCode, remoteName)
	return s
}

// NormalizeWithSource is Normalize plus the lookup that matched.
// When code and name are both known and disagree, the code wins.
func (n *StatusNormalizer) NormalizeWithSource(entityType EntityType, remoteCode, remoteName string) (CanonicalStatus, StatusSource) {
	m, ok := n.mappings[entityType]
	if !ok {
		return "", StatusSourceDefault
	}
	if code := foldStatus(remoteCode); code != "" {
		if s, ok := m.byCode[code]; ok {
			return s, StatusSourceCode
		}
	}
	if name := foldStatus(remoteName); name != "" {
		if s, ok := m.byName[name]; ok {
			return s, StatusSourceName
		}
	}
	return m.def, StatusSourceDefault
}

// Default returns the initial status of an entity type
func (n *StatusNormalizer) Default(entityType EntityType) CanonicalStatus {
	if m, ok := n.mappings[entityType]; ok {
		return m.def
	}
	return ""
}

// IsTerminal returns true if the status is a final state for the entity type
func (n *StatusNormalizer) IsTerminal(entityType EntityType, status CanonicalStatus) bool {
	m, ok := n.mappings[entityType]
	if !ok {
		return false
	}
	_, terminal := m.terminal[status]
	return terminal
}

// TerminalStatuses returns the terminal statuses of an entity type
func (n *StatusNormalizer) TerminalStatuses(entityType EntityType) []CanonicalStatus {
	m, ok := n.mappings[entityType]
	if !ok {
		return nil
	}
	out := make([]CanonicalStatus, 0, len(m.terminal))
	for s := range m.terminal {
		out = append(out, s)
	}
	return out
}

// IsValid returns true if status belongs to the entity type's enum
func (n *StatusNormalizer) IsValid(entityType EntityType, status CanonicalStatus) bool {
	m, ok := n.mappings[entityType]
	if !ok {
		return false
	}
	_, valid := m.valid[status]
	return valid
}

// RemoteCodeFor returns the remote status code to push for a canonical status
func (n *StatusNormalizer) RemoteCodeFor(entityType EntityType, status CanonicalStatus) (string, bool) {
	m, ok := n.mappings[entityType]
	if !ok {
		return "", false
	}
	code, ok := m.push[status]
	return code, ok
}

// foldStatus lowercases with Unicode case folding and collapses separators.
// A Caser holds state, so one is created per call.
func foldStatus(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// ---------------------------------------------------------------------------
// Default tables
// ---------------------------------------------------------------------------

// OrderStatusMapping is the order table of the order management API
func OrderStatusMapping() StatusMapping {
	return StatusMapping{
		EntityType: EntityTypeOrder,
		Default:    OrderStatusNew,
		ByCode: map[string]CanonicalStatus{
			"1":  OrderStatusNew,
			"2":  OrderStatusProcessing,
			"3":  OrderStatusProcessing,
			"4":  OrderStatusProcessing,
			"5":  OrderStatusProcessing,
			"6":  OrderStatusInProduction,
			"7":  OrderStatusInProduction,
			"8":  OrderStatusInProduction,
			"9":  OrderStatusReadyForFulfillment,
			"10": OrderStatusReadyForFulfillment,
			"11": OrderStatusFulfilled,
			"12": OrderStatusFulfilled,
			"13": OrderStatusFulfilled,
			"14": OrderStatusCancelled,
			"15": OrderStatusRefunded,
			"16": OrderStatusCompleted,
		},
		ByName: map[string]CanonicalStatus{
			"new order":              OrderStatusNew,
			"new":                    OrderStatusNew,
			"processing":             OrderStatusProcessing,
			"awaiting payment":       OrderStatusProcessing,
			"awaiting artwork":       OrderStatusProcessing,
			"artwork approved":       OrderStatusProcessing,
			"pre press":              OrderStatusInProduction,
			"in production":          OrderStatusInProduction,
			"printing":               OrderStatusInProduction,
			"ready for pickup":       OrderStatusReadyForFulfillment,
			"ready to ship":          OrderStatusReadyForFulfillment,
			"shipped":                OrderStatusFulfilled,
			"delivered":              OrderStatusFulfilled,
			"picked up":              OrderStatusFulfilled,
			"cancelled":              OrderStatusCancelled,
			"canceled":               OrderStatusCancelled,
			"refunded":               OrderStatusRefunded,
			"order completed":        OrderStatusCompleted,
			"completed":              OrderStatusCompleted,
			"ready for fulfillment":  OrderStatusReadyForFulfillment,
			"partially fulfilled":    OrderStatusFulfilled,
			"fulfilled":              OrderStatusFulfilled,
			"in production (rush)":   OrderStatusInProduction,
			"awaiting customer info": OrderStatusProcessing,
		},
		Terminal: []CanonicalStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded},
		PushCodes: map[CanonicalStatus]string{
			OrderStatusNew:                 "1",
			OrderStatusProcessing:          "2",
			OrderStatusInProduction:        "7",
			OrderStatusReadyForFulfillment: "9",
			OrderStatusFulfilled:           "11",
			OrderStatusCancelled:           "14",
			OrderStatusRefunded:            "15",
			OrderStatusCompleted:           "16",
		},
	}
}

// QuoteStatusMapping is the quote table of the order management API
func QuoteStatusMapping() StatusMapping {
	return StatusMapping{
		EntityType: EntityTypeQuote,
		Default:    QuoteStatusDraft,
		ByCode: map[string]CanonicalStatus{
			"1": QuoteStatusDraft,
			"2": QuoteStatusSent,
			"3": QuoteStatusAccepted,
			"4": QuoteStatusDeclined,
			"5": QuoteStatusExpired,
			"6": QuoteStatusConverted,
		},
		ByName: map[string]CanonicalStatus{
			"draft":              QuoteStatusDraft,
			"sent":               QuoteStatusSent,
			"awaiting approval":  QuoteStatusSent,
			"accepted":           QuoteStatusAccepted,
			"approved":           QuoteStatusAccepted,
			"declined":           QuoteStatusDeclined,
			"rejected":           QuoteStatusDeclined,
			"expired":            QuoteStatusExpired,
			"converted":          QuoteStatusConverted,
			"converted to order": QuoteStatusConverted,
		},
		Terminal: []CanonicalStatus{QuoteStatusConverted, QuoteStatusDeclined, QuoteStatusExpired},
		PushCodes: map[CanonicalStatus]string{
			QuoteStatusDraft:     "1",
			QuoteStatusSent:      "2",
			QuoteStatusAccepted:  "3",
			QuoteStatusDeclined:  "4",
			QuoteStatusExpired:   "5",
			QuoteStatusConverted: "6",
		},
	}
}

// ProofStatusMapping is the proof table of the proofing API. Codes are the
// GraphQL enum values.
func ProofStatusMapping() StatusMapping {
	return StatusMapping{
		EntityType: EntityTypeProof,
		Default:    ProofStatusDraft,
		ByCode: map[string]CanonicalStatus{
			"DRAFT":             ProofStatusDraft,
			"IN_REVIEW":         ProofStatusInReview,
			"PENDING":           ProofStatusInReview,
			"CHANGES_REQUESTED": ProofStatusChangesRequested,
			"APPROVED":          ProofStatusApproved,
			"REJECTED":          ProofStatusRejected,
		},
		ByName: map[string]CanonicalStatus{
			"draft":                 ProofStatusDraft,
			"not sent":              ProofStatusDraft,
			"in review":             ProofStatusInReview,
			"awaiting review":       ProofStatusInReview,
			"changes requested":     ProofStatusChangesRequested,
			"approved":              ProofStatusApproved,
			"approved with changes": ProofStatusApproved,
			"rejected":              ProofStatusRejected,
		},
		Terminal: []CanonicalStatus{ProofStatusApproved, ProofStatusRejected},
		PushCodes: map[CanonicalStatus]string{
			ProofStatusDraft:            "DRAFT",
			ProofStatusInReview:         "IN_REVIEW",
			ProofStatusChangesRequested: "CHANGES_REQUESTED",
			ProofStatusApproved:         "APPROVED",
			ProofStatusRejected:         "REJECTED",
		},
	}
}

// ConversationStatusMapping is the conversation table of the messaging platform
func ConversationStatusMapping() StatusMapping {
	return StatusMapping{
		EntityType: EntityTypeConversation,
		Default:    ConversationStatusOpen,
		ByCode: map[string]CanonicalStatus{
			"open":     ConversationStatusOpen,
			"pending":  ConversationStatusPending,
			"snoozed":  ConversationStatusPending,
			"resolved": ConversationStatusResolved,
			"closed":   ConversationStatusClosed,
		},
		ByName: map[string]CanonicalStatus{
			"open":     ConversationStatusOpen,
			"active":   ConversationStatusOpen,
			"waiting":  ConversationStatusPending,
			"on hold":  ConversationStatusPending,
			"resolved": ConversationStatusResolved,
			"done":     ConversationStatusResolved,
			"closed":   ConversationStatusClosed,
			"archived": ConversationStatusClosed,
		},
		Terminal: []CanonicalStatus{ConversationStatusClosed},
		PushCodes: map[CanonicalStatus]string{
			ConversationStatusOpen:     "open",
			ConversationStatusPending:  "pending",
			ConversationStatusResolved: "resolved",
			ConversationStatusClosed:   "closed",
		},
	}
}

// DefaultStatusNormalizer returns a normalizer with every built-in table
func DefaultStatusNormalizer() *StatusNormalizer {
	return NewStatusNormalizer(
		OrderStatusMapping(),
		QuoteStatusMapping(),
		ProofStatusMapping(),
		ConversationStatusMapping(),
	)
}
