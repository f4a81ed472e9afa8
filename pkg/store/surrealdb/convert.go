package surrealdb

import (
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

// toDocument converts a SurrealDB record into a document of collection.
func toDocument(collection string, record map[string]any) (*store.Document, error) {
	raw, ok := record["id"]
	if !ok {
		return nil, fmt.Errorf("record in %s has no id", collection)
	}
	id, err := recordKey(raw)
	if err != nil {
		return nil, fmt.Errorf("record in %s: %w", collection, err)
	}

	fields := make(map[string]any, len(record))
	for k, v := range record {
		if k == "id" {
			continue
		}
		fields[k] = normalize(v)
	}

	return &store.Document{
		DocumentRef: store.DocumentRef{Collection: collection, ID: id},
		Fields:      fields,
	}, nil
}

func recordKey(v any) (string, error) {
	switch id := v.(type) {
	case models.RecordID:
		return keyString(id.ID), nil
	case *models.RecordID:
		if id == nil {
			return "", fmt.Errorf("nil record id")
		}
		return keyString(id.ID), nil
	case string:
		return id, nil
	default:
		return "", fmt.Errorf("unsupported id type %T", v)
	}
}

func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// normalize converts SurrealDB specific values into plain Go values.
func normalize(v any) any {
	switch val := v.(type) {
	case models.CustomDateTime:
		return val.Time.UTC()
	case *models.CustomDateTime:
		if val == nil {
			return nil
		}
		return val.Time.UTC()
	case time.Time:
		return val.UTC()
	case models.RecordID:
		return keyString(val.ID)
	case *models.RecordID:
		if val == nil {
			return nil
		}
		return keyString(val.ID)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
