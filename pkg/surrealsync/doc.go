// Package surrealsync is the application layer of the sync daemon.
//
// It turns command line arguments into a [Command] and a validated [Config],
// connects the relational store ([github.com/surrealdb/surrealsync/pkg/store/postgres])
// and the document store ([github.com/surrealdb/surrealsync/pkg/store/surrealdb],
// or the in-memory store for local runs) and wires both into a
// [github.com/surrealdb/surrealsync/pkg/syncengine.Engine].
//
// # Commands
//
//	surrealsync run                       # listeners, outbox, retries and ops server
//	surrealsync migrate                   # schema and stored procedures
//	surrealsync retry                     # one retry pass
//	surrealsync stats --days 30           # statistics as JSON
//	surrealsync failed --limit 20         # unresolved sync errors as JSON
//	surrealsync push groups 42            # mirror one entity
//
// # Configuration
//
// A YAML file passed with --config is read over [DefaultConfig]:
//
//	postgres:
//	  dsn: postgres://surrealsync:secret@db:5432/surrealsync?sslmode=disable
//	surrealdb:
//	  url: ws://surrealdb:8000/rpc
//	  namespace: app
//	  database: app
//	sync:
//	  conflict_policy: last_write_wins
//	  tie_break: relational
//	  guard_ttl: 10s
//	server:
//	  addr: :8080
//	log:
//	  level: info
//	  format: json
//
// See [Main] for the environment variables.
package surrealsync
