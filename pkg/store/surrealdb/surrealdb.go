// Package surrealdb provides the SurrealDB implementation of the
// [github.com/surrealdb/surrealsync/pkg/store.DocumentStore] interface.
//
// # Connection
//
// [Open] builds the WebSocket connection by hand rather than through
// FromEndpointURLString so that the surrealcbor codec is used for both
// directions; without it time.Time and RecordID values do not round-trip.
// When a reconnect interval is configured the connection is wrapped in a
// [rews.Connection], which re-authenticates and restores live queries after
// a dropped socket, so subscriptions survive server restarts.
//
// # Documents
//
// Documents map to records: the collection is the table and the document id is
// the record id. Reads strip the id field and normalise SurrealDB values back to
// plain Go values (datetimes to time.Time, record links to their id string).
//
// # Change Subscriptions
//
// [Store.Subscribe] starts a LIVE query on the table and converts each
// notification into a [store.ChangeEvent]. CREATE, UPDATE and DELETE map to
// [store.Created], [store.Updated] and [store.Deleted]; DELETE notifications
// carry the last state of the record.
//
// All queries are parameterized; record ids are passed as [models.RecordID]
// values and never interpolated.
package surrealdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	sdklogger "github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
	"github.com/surrealdb/surrealsync/pkg/store"
)

// Config holds the connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	// ReconnectInterval enables automatic reconnection when greater than zero.
	ReconnectInterval time.Duration
}

// Store implements store.DocumentStore on SurrealDB.
type Store struct {
	db     *surrealdb.DB
	logger zerolog.Logger
}

var _ store.DocumentStore = (*Store)(nil)

// Open connects, signs in and selects the namespace and database.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	u, err := url.ParseRequestURI(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	sdkLog := sdklogger.New(slog.NewTextHandler(log, nil))
	conf.Logger = sdkLog

	var conn connection.Connection
	switch conf.URL.Scheme {
	case "ws", "wss":
		if cfg.ReconnectInterval > 0 {
			rc := rews.New(
				func(ctx context.Context) (*gorillaws.Connection, error) {
					return gorillaws.New(conf), nil
				},
				cfg.ReconnectInterval,
				conf.Unmarshaler,
				sdkLog,
			)
			if err := rc.Connect(ctx); err != nil {
				return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
			}
			conn = rc
		} else {
			conn = gorillaws.New(conf)
		}
	default:
		return nil, fmt.Errorf("live queries require a WebSocket URL, got scheme %q", conf.URL.Scheme)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.With().Str("component", "document_store").Logger(),
	}, nil
}

func recordID(ref store.DocumentRef) models.RecordID {
	return models.NewRecordID(ref.Collection, ref.ID)
}

// Get returns the document, or nil when the record does not exist.
func (s *Store) Get(ctx context.Context, ref store.DocumentRef) (*store.Document, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db, "SELECT * FROM $rid", map[string]any{
		"rid": recordID(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return nil, nil
	}
	doc, err := toDocument(ref.Collection, (*res)[0].Result[0])
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Set creates or replaces the record.
func (s *Store) Set(ctx context.Context, ref store.DocumentRef, fields map[string]any) error {
	content := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		content[k] = v
	}
	_, err := surrealdb.Query[[]map[string]any](ctx, s.db, "UPSERT $rid CONTENT $content", map[string]any{
		"rid":     recordID(ref),
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", ref, err)
	}
	return nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, ref store.DocumentRef) error {
	_, err := surrealdb.Query[any](ctx, s.db, "DELETE $rid", map[string]any{
		"rid": recordID(ref),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

// DeleteBatch removes all records in one SurrealDB transaction.
func (s *Store) DeleteBatch(ctx context.Context, refs []store.DocumentRef) error {
	if len(refs) == 0 {
		return nil
	}

	var sb strings.Builder
	vars := make(map[string]any, len(refs))
	sb.WriteString("BEGIN TRANSACTION;\n")
	for i, ref := range refs {
		name := fmt.Sprintf("r%d", i)
		vars[name] = recordID(ref)
		fmt.Fprintf(&sb, "DELETE $%s;\n", name)
	}
	sb.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, s.db, sb.String(), vars); err != nil {
		return fmt.Errorf("failed to delete %d records: %w", len(refs), err)
	}
	return nil
}

// ListByField returns the records of collection whose field equals value.
func (s *Store) ListByField(ctx context.Context, collection, field string, value any) ([]*store.Document, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db,
		"SELECT * FROM type::table($tb) WHERE type::field($field) = $value ORDER BY id",
		map[string]any{
			"tb":    collection,
			"field": field,
			"value": value,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s by %s: %w", collection, field, err)
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}

	docs := make([]*store.Document, 0, len((*res)[0].Result))
	for _, record := range (*res)[0].Result {
		doc, err := toDocument(collection, record)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Close closes the database connection
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}
