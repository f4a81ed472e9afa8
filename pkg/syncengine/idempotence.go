package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"gorm.io/datatypes"
)

// IdempotenceKey derives the key identifying one logical change. The same
// change delivered twice yields the same key. contentHash is the data hash of
// the change, so two distinct changes carrying the same timestamp differ.
func IdempotenceKey(source models.EventSource, table, recordID string, action models.AuditAction, at time.Time, contentHash string) string {
	parts := []string{
		string(source),
		table,
		recordID,
		string(action),
		at.UTC().Format(time.RFC3339Nano),
		contentHash,
	}
	return hashWithDomain(domainIdempotence, []byte(strings.Join(parts, "\x00")))
}

// AuditStatus is the outcome of recording an audit entry.
type AuditStatus int

const (
	// AuditOK means the entry was recorded.
	AuditOK AuditStatus = iota
	// AuditDuplicate means the change was recorded before; the caller must not reapply it.
	AuditDuplicate
)

func (s AuditStatus) String() string {
	if s == AuditDuplicate {
		return "duplicate"
	}
	return "ok"
}

// AuditEvent describes a change to record.
type AuditEvent struct {
	Source   models.EventSource
	Table    string
	RecordID string
	Action   models.AuditAction
	Old      any
	New      any
	ActorID  string
	// At is the timestamp the change carries; it is part of the idempotence key.
	At time.Time
	// Hash is the data hash of the change, also part of the key. Deletes use
	// the hash of the row being removed.
	Hash string
	// Err marks a failed attempt.
	Err error
}

// AuditRecorder writes audit entries inside the caller's transaction.
type AuditRecorder struct {
	now func() time.Time
}

// Log records ev and reports AuditDuplicate when its key was seen before.
//
// Failed attempts are recorded under a key scoped to the attempt, so a later
// successful replay of the same change still records under the change's key.
func (r *AuditRecorder) Log(ctx context.Context, tx store.Tx, ev AuditEvent) (AuditStatus, error) {
	now := r.now()
	key := IdempotenceKey(ev.Source, ev.Table, ev.RecordID, ev.Action, ev.At, ev.Hash)

	entry := &models.AuditLogEntry{
		EventSource:    ev.Source,
		Table:          ev.Table,
		RecordID:       ev.RecordID,
		Action:         ev.Action,
		Success:        ev.Err == nil,
		IdempotenceKey: key,
		Timestamp:      now,
	}
	if ev.ActorID != "" {
		actor := ev.ActorID
		entry.ActorID = &actor
	}
	if ev.Err != nil {
		msg := ev.Err.Error()
		entry.ErrorMessage = &msg
		entry.IdempotenceKey = hashWithDomain(domainIdempotence, []byte(key+"\x00failed\x00"+strconv.FormatInt(now.UnixNano(), 10)))
	}

	var err error
	if entry.OldValue, err = jsonValue(ev.Old); err != nil {
		return AuditOK, fmt.Errorf("failed to encode old value: %w", err)
	}
	if entry.NewValue, err = jsonValue(ev.New); err != nil {
		return AuditOK, fmt.Errorf("failed to encode new value: %w", err)
	}

	inserted, err := tx.InsertAuditEntry(ctx, entry)
	if err != nil {
		return AuditOK, fmt.Errorf("failed to record audit entry: %w", err)
	}
	if !inserted {
		return AuditDuplicate, nil
	}
	return AuditOK, nil
}

// jsonValue encodes v as an opaque JSON payload. nil stays SQL NULL.
func jsonValue(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
