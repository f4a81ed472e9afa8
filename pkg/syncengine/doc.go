// Package syncengine keeps a relational store and a real-time document store
// consistent in both directions.
//
// # Directions
//
// Document to relational: the [Engine] subscribes to every collection it has an
// [EntitySyncHandler] for. One goroutine per subscription applies events in
// delivery order. Each event is applied in one short relational transaction that
// writes the audit entry, the entity rows (resolving group identifiers through the
// [MappingResolver]) and the sync state together.
//
// Relational to document: application writes go through [Engine.WithForwardSync]
// (or the [Writer] helpers built on it). The relational change, its audit entry and
// an outbox task commit together; the task is then mirrored with
// [Engine.SyncRelationalToDocument]. A mirror failure never fails the caller; it
// becomes a [models.SyncError] that [Engine.RetryFailedSyncs] replays later.
//
// # Safety Mechanisms
//
//   - Idempotence: every applied change carries a key derived from its source,
//     table, record, action and timestamp ([IdempotenceKey]). A redelivered
//     event hits the unique key and is dropped.
//   - Redundant writes: a content hash of the synced fields ([DataHash]) is kept
//     per entity; an event whose hash matches the last synced hash is skipped.
//   - Loops: a [Guard] marks document keys while they are being written in either
//     direction. Mirrored writes echo back through the subscription and are
//     recognised by the guard and the hash.
//   - Conflicts: when both sides changed since the last sync, the
//     [ConflictResolver] picks a winner by policy and the decision is audited.
//
// # Observability
//
// Components log through zerolog, expose Prometheus metrics ([Metrics]) and open
// OpenTelemetry spans around event application, mirroring and retry.
package syncengine
