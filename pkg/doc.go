// Package pkg contains the sub-packages of surrealsync.
//
// # Application Layer
//
// [github.com/surrealdb/surrealsync/pkg/surrealsync] parses the command line
// and configuration, wires the stores into the engine and serves the ops API.
//
// # Engine
//
// [github.com/surrealdb/surrealsync/pkg/syncengine] implements both sync
// directions, the loop guard, conflict resolution, the audit trail and the
// retry queue. It only depends on the store contracts.
//
// # Domain Layer
//
// [github.com/surrealdb/surrealsync/pkg/models] defines the relational rows
// touched by sync and the bookkeeping rows: entity_mapping, audit_log,
// sync_state, sync_errors and sync_outbox.
//
// # Infrastructure Layer
//
// [github.com/surrealdb/surrealsync/pkg/store] declares the relational and
// document store contracts. [github.com/surrealdb/surrealsync/pkg/store/postgres]
// implements the relational side with GORM, [github.com/surrealdb/surrealsync/pkg/store/surrealdb]
// the document side with the SurrealDB SDK, and [github.com/surrealdb/surrealsync/pkg/store/memdoc]
// an in-memory document store.
//
// # Package Dependencies
//
//	surrealsync → syncengine, store/*, logger
//	syncengine → store, models
//	store/postgres → store, models
//	store/surrealdb → store
//	store/memdoc → store
//	store → models
//	synctesting → store/postgres
package pkg
