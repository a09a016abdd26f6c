package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.ToLower(strings.TrimSpace(sortField))
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// SyncEntitySortFields contains allowed sort fields for sync entities
var SyncEntitySortFields = map[string]bool{
	"created_at":              true,
	"updated_at":              true,
	"external_id":             true,
	"canonical_status":        true,
	"sync_status":             true,
	"last_synced_at":          true,
	"modified_at":             true,
	"remote_updated_at":       true,
	"consecutive_error_count": true,
}
