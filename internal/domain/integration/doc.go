// Package integration contains the Integration bounded context: keeping local
// copies of remote entities (orders, quotes, proofs, conversations) eventually
// consistent with the external systems of record that own them.
//
// Key concepts:
//   - SyncEntity: local mirror of one remote object, carrying sync metadata
//   - Watermark: per (entity type, account) high-water mark bounding incremental syncs
//   - StatusNormalizer: collapses remote status vocabularies onto canonical enums
//   - SnapshotDiffer: suppresses semantically empty writes
//   - CircuitBreakerPolicy: excludes permanently failing entities from polling
//   - RemoteAdapter: port implemented once per external system
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
