package syncengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Mutation describes one relational change to mirror to the document store.
type Mutation struct {
	// EntityType is the relational table, e.g. "groups".
	EntityType string
	// EntityID is the relational key.
	EntityID string
	Action   models.AuditAction
	// Data is the payload of the row after the change. Group payloads carry
	// their document id under "external_id".
	Data map[string]any
	// Old is the payload before the change, if any.
	Old map[string]any
}

// ForwardOp performs relational writes inside tx and returns what changed.
type ForwardOp func(ctx context.Context, tx store.Tx) ([]Mutation, error)

type actorKey struct{}

// WithActor attaches the id of the acting user to ctx. It ends up in audit entries.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func actorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

// WithForwardSync runs op in a relational transaction and mirrors the
// returned mutations to the document store after commit.
//
// The audit entries and outbox tasks of the mutations commit together with
// op's writes. An error from op is returned untouched and nothing is
// mirrored. Mirror failures are persisted as sync errors and never returned:
// once the transaction committed the call succeeds.
func (e *Engine) WithForwardSync(ctx context.Context, op ForwardOp) error {
	ctx, span := tracer.Start(ctx, "syncengine.WithForwardSync")
	defer span.End()

	var tasks []*models.SyncTask
	err := e.rel.Transaction(ctx, func(tx store.Tx) error {
		tasks = tasks[:0]
		mutations, err := op(ctx, tx)
		if err != nil {
			return err
		}
		for _, m := range mutations {
			task, err := e.enqueue(ctx, tx, m)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Int("tasks", len(tasks)))
	for _, task := range tasks {
		_ = e.processTask(ctx, task)
	}
	return nil
}

// enqueue writes the audit entry and outbox task of m.
func (e *Engine) enqueue(ctx context.Context, tx store.Tx, m Mutation) (*models.SyncTask, error) {
	if !m.Action.Valid() {
		return nil, fmt.Errorf("invalid action %q for %s/%s", m.Action, m.EntityType, m.EntityID)
	}
	if _, err := e.handlerForType(m.EntityType); err != nil {
		return nil, err
	}

	now := e.now()
	audit := AuditEvent{
		Source:   models.SourceRelationalStore,
		Table:    m.EntityType,
		RecordID: m.EntityID,
		Action:   m.Action,
		New:      m.Data,
		At:       now,
	}
	if m.Old != nil {
		audit.Old = m.Old
	}
	if _, err := e.logAudit(ctx, tx, audit); err != nil {
		return nil, err
	}

	payload, err := jsonValue(m.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of %s/%s: %w", m.EntityType, m.EntityID, err)
	}
	task := &models.SyncTask{
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Action:     m.Action,
		Payload:    payload,
		CreatedAt:  now,
	}
	if err := tx.EnqueueSyncTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue sync task: %w", err)
	}
	return task, nil
}

// processTask mirrors one outbox task and marks it processed. Tasks already
// being processed elsewhere in this process are skipped.
func (e *Engine) processTask(ctx context.Context, task *models.SyncTask) error {
	if !e.claimTask(task.ID) {
		return nil
	}
	defer e.releaseTask(task.ID)

	var data map[string]any
	var err error
	if len(task.Payload) > 0 {
		if err = json.Unmarshal(task.Payload, &data); err != nil {
			err = fmt.Errorf("%w: undecodable outbox payload: %v", ErrInvalidDocument, err)
			e.recordMirrorFailure(ctx, task.EntityType, task.EntityID, task.Action, nil, err)
		}
	}
	if err == nil {
		err = e.SyncRelationalToDocument(ctx, task.EntityType, task.EntityID, data, task.Action)
	}

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureTimeout)
	defer cancel()
	if markErr := e.rel.MarkSyncTaskProcessed(markCtx, task.ID, e.now()); markErr != nil {
		e.logger.Error().Err(markErr).Uint64("task_id", task.ID).Msg("Failed to mark sync task processed")
	}
	return err
}

func (e *Engine) claimTask(id uint64) bool {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Engine) releaseTask(id uint64) {
	e.tasksMu.Lock()
	defer e.tasksMu.Unlock()
	delete(e.inflight, id)
}

// SyncRelationalToDocument mirrors a relational entity to the document store.
// data is the row payload; when nil for a non-delete the row is loaded.
//
// On failure a sync error (pending, no retries yet) is persisted and the
// error is returned.
func (e *Engine) SyncRelationalToDocument(ctx context.Context, entityType, entityID string, data map[string]any, action models.AuditAction) error {
	ctx, span := tracer.Start(ctx, "syncengine.SyncRelationalToDocument", trace.WithAttributes(
		attribute.String("entity.type", entityType),
		attribute.String("entity.id", entityID),
		attribute.String("action", string(action)),
	))
	err := e.mirror(ctx, entityType, entityID, data, action)
	endSpan(span, err)

	if err != nil {
		e.metrics.mirrors.WithLabelValues(entityType, "error").Inc()
		e.recordMirrorFailure(ctx, entityType, entityID, action, data, err)
		return err
	}
	e.metrics.mirrors.WithLabelValues(entityType, "ok").Inc()
	return nil
}

func (e *Engine) mirror(ctx context.Context, entityType, entityID string, data map[string]any, action models.AuditAction) error {
	h, err := e.handlerForType(entityType)
	if err != nil {
		return err
	}
	if data == nil && action != models.ActionDelete {
		if data, err = h.Load(ctx, e.rel, entityID); err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("%w: %s/%s does not exist", ErrInvalidDocument, entityType, entityID)
		}
	}

	docID, err := h.DocumentID(ctx, e.rel, entityID, data)
	if err != nil {
		return err
	}
	ref := store.DocumentRef{Collection: h.Collection(), ID: docID}
	if action == models.ActionDelete {
		return e.deleteDocument(ctx, h, ref)
	}

	fields, err := h.ToDocument(ctx, e.rel, data)
	if err != nil {
		return err
	}
	return e.writeDocument(ctx, h, ref, fields)
}

func (e *Engine) writeDocument(ctx context.Context, h EntitySyncHandler, ref store.DocumentRef, fields map[string]any) error {
	synced, err := h.Fields(fields)
	if err != nil {
		return err
	}
	hash, err := DataHash(synced)
	if err != nil {
		return err
	}

	key := GuardKey(ref.Collection, ref.ID)
	e.guard.Acquire(key)
	if err := e.docs.Set(ctx, ref, fields); err != nil {
		e.guard.Release(key)
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return e.state.Update(ctx, e.rel, h.EntityType(), ref.ID, hash, models.DirectionRelToDoc)
}

// deleteDocument removes a document and its dependents in one batch.
func (e *Engine) deleteDocument(ctx context.Context, h EntitySyncHandler, ref store.DocumentRef) error {
	refs, err := h.Dependents(ctx, e.docs, ref.ID)
	if err != nil {
		return err
	}
	refs = append(refs, ref)

	for _, r := range refs {
		e.guard.Acquire(GuardKey(r.Collection, r.ID))
	}
	if len(refs) == 1 {
		err = e.docs.Delete(ctx, ref)
	} else {
		err = e.docs.DeleteBatch(ctx, refs)
	}
	if err != nil {
		for _, r := range refs {
			e.guard.Release(GuardKey(r.Collection, r.ID))
		}
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}

	for _, r := range refs {
		entityType := r.Collection
		if dh, ok := e.byCollection[r.Collection]; ok {
			entityType = dh.EntityType()
		}
		if err := e.state.Update(ctx, e.rel, entityType, r.ID, "", models.DirectionRelToDoc); err != nil {
			return err
		}
	}
	return nil
}

// recordMirrorFailure persists a relational to document sync error.
func (e *Engine) recordMirrorFailure(ctx context.Context, entityType, entityID string, action models.AuditAction, data map[string]any, cause error) {
	payload, err := jsonValue(data)
	if err != nil {
		e.logger.Error().Err(err).Str("entity_type", entityType).Str("entity_id", entityID).Msg("Failed to encode failed payload")
	}
	e.recordFailure(ctx, &models.SyncError{
		EntityType: entityType,
		EntityID:   entityID,
		Direction:  models.DirectionRelToDoc,
		Action:     action,
		FailedData: payload,
	}, AuditEvent{
		Source:   models.SourceRelationalStore,
		Table:    entityType,
		RecordID: entityID,
		Action:   action,
		New:      data,
	}, cause)
}
