// Package models defines the relational rows that the sync engine reads and writes.
//
// Two families of rows live here:
//
//   - Domain rows mirrored between the stores: [User], [Group], [GroupMembership],
//     [File] and [Tag]. Groups are the only entity whose relational key differs from
//     the document key, so they are bound through [EntityMapping].
//   - Sync bookkeeping rows: [EntityMapping], [AuditLogEntry], [SyncState], [SyncError]
//     and [SyncTask]. These tables make sync idempotent, auditable and retryable.
//
// All rows are GORM models. Column types are kept dialect neutral so the same
// models migrate on PostgreSQL in production and on SQLite in tests; JSON payloads
// use [gorm.io/datatypes.JSON] which maps to jsonb on PostgreSQL.
//
// Timestamps are set explicitly by the sync engine rather than by GORM hooks.
// Conflict resolution compares the updated_at of both stores, so the value written
// relationally must be the one the change carried.
package models
