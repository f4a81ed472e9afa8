package syncengine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"golang.org/x/text/unicode/norm"
)

// Hash domains. The version suffix allows changing the encoding later.
const (
	domainDataHash    = "surrealsync/data/v1"
	domainIdempotence = "surrealsync/audit/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DataHash returns the content hash of a synced field set. Equal content
// yields equal hashes regardless of map order, Unicode normalization form or
// whether a number arrived as an integer or an integral float.
func DataHash(fields map[string]any) (string, error) {
	canonical, err := MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("DataHash: %w", err)
	}
	return hashWithDomain(domainDataHash, canonical), nil
}

// MarshalCanonical encodes v as JSON with sorted object keys, NFC strings,
// integral numbers as integers, UTC RFC 3339 timestamps and no HTML escaping.
func MarshalCanonical(v any) ([]byte, error) {
	c, err := canonicalValue(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func canonicalValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return norm.NFC.String(val), nil
	case bool:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return canonicalUint(uint64(val)), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return canonicalUint(val), nil
	case float32:
		return canonicalFloat(float64(val))
	case float64:
		return canonicalFloat(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return canonicalFloat(f)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return val.UTC().Format(time.RFC3339Nano), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key := norm.NFC.String(k)
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("duplicate key %q after normalization", key)
			}
			c, err := canonicalValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[key] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := canonicalValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = norm.NFC.String(item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func canonicalUint(v uint64) any {
	if v > math.MaxInt64 {
		return json.Number(fmt.Sprintf("%d", v))
	}
	return int64(v)
}

func canonicalFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), nil
	}
	return f, nil
}

// StateTracker reads and writes per-entity sync state.
type StateTracker struct {
	now func() time.Time
}

// Get returns the recorded state, or nil when the entity was never synced.
func (t *StateTracker) Get(ctx context.Context, tx store.Tx, entityType, entityID string) (*models.SyncState, error) {
	state, err := tx.GetSyncState(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state of %s/%s: %w", entityType, entityID, err)
	}
	return state, nil
}

// Update records hash as the last synced content of the entity.
func (t *StateTracker) Update(ctx context.Context, tx store.Tx, entityType, entityID, hash string, direction models.SyncDirection) error {
	err := tx.UpsertSyncState(ctx, &models.SyncState{
		EntityType:    entityType,
		EntityID:      entityID,
		DataHash:      hash,
		LastSyncedAt:  t.now(),
		SyncDirection: direction,
	})
	if err != nil {
		return fmt.Errorf("failed to update sync state of %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

// Unchanged reports whether hash equals the recorded state.
func Unchanged(state *models.SyncState, hash string) bool {
	return state != nil && hash != "" && state.DataHash == hash
}
