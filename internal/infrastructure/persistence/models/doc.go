// Package models contains GORM persistence models that map to database tables.
// They are kept apart from the domain types so the domain layer stays free of
// ORM concerns; repositories convert with ToDomain/FromDomain.
//
// Structure:
//   - sync_entity.go: mirrored remote entities with sync metadata
//   - watermark.go: per (entity type, account) feed positions
//   - sync_run.go: sync run history
package models
