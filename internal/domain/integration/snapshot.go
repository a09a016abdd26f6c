package integration

import (
	"encoding/json"
	"sort"
	"strings"
)

// Snapshot is the comparable projection of an entity: each allow-listed
// field rendered as canonical JSON
type Snapshot map[string]string

// Snapshot keys that are not business fields
const (
	SnapshotKeyStatus     = "canonical_status"
	SnapshotKeyChildCount = "children.count"
	SnapshotKeyChildIDs   = "children.ids"
)

// FieldChange describes one differing snapshot key
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// SnapshotDiffer decides whether an incoming record changes anything
type SnapshotDiffer struct {
	allowList map[EntityType][]string
}

// NewSnapshotDiffer creates a differ with the given per-type field allow-lists
func NewSnapshotDiffer(allowList map[EntityType][]string) *SnapshotDiffer {
	copied := make(map[EntityType][]string, len(allowList))
	for t, fields := range allowList {
		copied[t] = append([]string(nil), fields...)
	}
	return &SnapshotDiffer{allowList: copied}
}

// DefaultSnapshotDiffer returns a differ with the built-in allow-lists
func DefaultSnapshotDiffer() *SnapshotDiffer {
	return NewSnapshotDiffer(DefaultFieldAllowList())
}

// DefaultFieldAllowList returns the business fields mirrored per entity type
func DefaultFieldAllowList() map[EntityType][]string {
	return map[EntityType][]string{
		EntityTypeOrder: {
			"order_number", "customer_name", "customer_email", "total",
			"balance_due", "currency", "due_date", "shipping_method",
		},
		EntityTypeQuote: {
			"quote_number", "customer_name", "customer_email", "total",
			"currency", "expires_at",
		},
		EntityTypeProof: {
			"name", "version", "due_date", "approver_email", "order_external_id",
		},
		EntityTypeConversation: {
			"subject", "assignee", "channel", "contact_name", "last_message_at",
		},
	}
}

// AllowedFields returns the mirrored fields of an entity type
func (d *SnapshotDiffer) AllowedFields(entityType EntityType) []string {
	return d.allowList[entityType]
}

// Filter keeps only the allow-listed fields of a remote payload
func (d *SnapshotDiffer) Filter(entityType EntityType, fields map[string]any) map[string]any {
	out := make(map[string]any)
	for _, f := range d.allowList[entityType] {
		if v, ok := fields[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Snapshot projects an entity. A nil entity has a nil snapshot.
func (d *SnapshotDiffer) Snapshot(e *SyncEntity) Snapshot {
	if e == nil {
		return nil
	}
	s := make(Snapshot)
	for _, f := range d.allowList[e.EntityType] {
		s[f] = canonicalJSON(e.Fields[f])
	}
	s[SnapshotKeyStatus] = string(e.CanonicalStatus)

	ids := append([]string(nil), e.ChildIDs...)
	sort.Strings(ids)
	s[SnapshotKeyChildCount] = canonicalJSON(len(ids))
	s[SnapshotKeyChildIDs] = strings.Join(ids, ",")
	return s
}

// HasChanged returns true if after differs from before. A missing before
// snapshot means the entity is new.
func (d *SnapshotDiffer) HasChanged(before, after Snapshot) bool {
	if before == nil {
		return true
	}
	return len(d.Diff(before, after)) > 0
}

// Diff lists the keys whose values differ, sorted by key
func (d *SnapshotDiffer) Diff(before, after Snapshot) []FieldChange {
	keys := make(map[string]struct{}, len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	var changes []FieldChange
	for k := range keys {
		b, a := before[k], after[k]
		if b != a {
			changes = append(changes, FieldChange{Field: k, Before: b, After: a})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// ChangedFieldNames returns the field names of a diff
func ChangedFieldNames(changes []FieldChange) []string {
	names := make([]string, len(changes))
	for i, c := range changes {
		names[i] = c.Field
	}
	return names
}

// canonicalJSON renders a value so that values which round-trip through JSON
// storage compare equal: integers and floats of the same value, maps with
// differently ordered keys.
func canonicalJSON(v any) string {
	if v == nil {
		return "null"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
