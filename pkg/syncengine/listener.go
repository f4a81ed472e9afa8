package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is what processing a change event did.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeDuplicate
	OutcomeUnchanged
	OutcomeRefreshed
	OutcomeEcho
	OutcomeConflictDocumentWon
	OutcomeConflictRelationalWon
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeEcho:
		return "echo"
	case OutcomeConflictDocumentWon:
		return "conflict_document_won"
	case OutcomeConflictRelationalWon:
		return "conflict_relational_won"
	default:
		return "failed"
	}
}

// errRollback discards a transaction that turned out to be a no-op.
var errRollback = errors.New("rollback")

// failedEvent is the failed_data of a document to relational sync error.
type failedEvent struct {
	store.Document
	Action models.AuditAction `json:"action"`
}

// listener drives one subscription. Events are handled one at a time, so
// changes to the same document are applied in delivery order.
type listener struct {
	engine  *Engine
	handler EntitySyncHandler
	sub     store.Subscription
}

func (l *listener) run(ctx context.Context) {
	defer l.engine.wg.Done()

	logger := l.engine.logger.With().Str("collection", l.handler.Collection()).Logger()
	logger.Debug().Msg("Listener started")
	for ev := range l.sub.Events() {
		l.engine.processEvent(ctx, l.handler, ev)
	}
	logger.Debug().Msg("Listener stopped")
}

// processEvent handles one event and persists a sync error when it fails.
// It never returns an error so that one bad event cannot stop a listener.
func (e *Engine) processEvent(ctx context.Context, h EntitySyncHandler, ev store.ChangeEvent) Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.opts.EventTimeout)
	defer cancel()

	ref := ev.Ref()
	ctx, span := tracer.Start(ctx, "syncengine.processEvent", trace.WithAttributes(
		attribute.String("collection", ref.Collection),
		attribute.String("document.id", ref.ID),
		attribute.String("action", string(ev.Action())),
	))
	outcome, err := e.handleEvent(ctx, h, ev)
	endSpan(span, err)

	elapsed := time.Since(start)
	e.metrics.events.WithLabelValues(h.Collection(), outcome.String()).Inc()
	e.metrics.eventDuration.WithLabelValues(h.Collection()).Observe(elapsed.Seconds())
	if elapsed > e.guard.TTL() {
		e.metrics.guardOverruns.Inc()
		e.logger.Warn().
			Str("document", ref.String()).
			Dur("elapsed", elapsed).
			Dur("guard_ttl", e.guard.TTL()).
			Msg("Event processing outlived the sync guard")
	}

	if err != nil {
		e.recordEventFailure(ctx, h, ev, err)
		return OutcomeFailed
	}
	e.logger.Debug().
		Str("document", ref.String()).
		Str("action", string(ev.Action())).
		Stringer("outcome", outcome).
		Msg("Processed change event")
	return outcome
}

// handleEvent applies a document change to the relational store.
func (e *Engine) handleEvent(ctx context.Context, h EntitySyncHandler, ev store.ChangeEvent) (Outcome, error) {
	ref := ev.Ref()
	if ref.ID == "" {
		return OutcomeFailed, fmt.Errorf("%w: event without id on %s", ErrInvalidDocument, ref.Collection)
	}
	_, deleted := ev.(store.Deleted)

	var fields map[string]any
	var hash string
	if !deleted {
		var err error
		if fields, err = h.Fields(ev.Data()); err != nil {
			return OutcomeFailed, err
		}
		if hash, err = DataHash(fields); err != nil {
			return OutcomeFailed, err
		}
	}

	key := GuardKey(ref.Collection, ref.ID)
	if !e.guard.TryAcquire(key) {
		echo, err := e.isEcho(ctx, h, ref.ID, hash, deleted)
		if err != nil {
			return OutcomeFailed, err
		}
		if !echo {
			return OutcomeFailed, fmt.Errorf("%w: %s", ErrInFlight, key)
		}
		e.guard.Release(key)
		return OutcomeEcho, nil
	}

	outcome, remirror, err := e.applyEvent(ctx, h, ev, fields, hash)
	e.guard.Release(key)
	if err != nil {
		return OutcomeFailed, err
	}

	if remirror != nil {
		// The mirror records its own sync error; the event itself was handled.
		if err := e.SyncRelationalToDocument(ctx, h.EntityType(), remirror.entityID, remirror.data, models.ActionUpdate); err != nil {
			e.logger.Warn().Err(err).Str("document", ref.String()).Msg("Failed to mirror winning relational version")
		}
	}
	return outcome, nil
}

// isEcho reports whether an event on a guarded document is the result of our
// own write, in which case both stores already agree.
func (e *Engine) isEcho(ctx context.Context, h EntitySyncHandler, docID, hash string, deleted bool) (bool, error) {
	snap, err := h.Snapshot(ctx, e.rel, docID)
	if err != nil {
		return false, err
	}
	if deleted {
		return snap == nil, nil
	}
	if snap != nil && snap.Hash == hash {
		return true, nil
	}
	state, err := e.state.Get(ctx, e.rel, h.EntityType(), docID)
	if err != nil {
		return false, err
	}
	return Unchanged(state, hash), nil
}

type remirror struct {
	entityID string
	data     map[string]any
}

// applyEvent runs the relational side of an event in one transaction.
func (e *Engine) applyEvent(ctx context.Context, h EntitySyncHandler, ev store.ChangeEvent, fields map[string]any, hash string) (Outcome, *remirror, error) {
	ref := ev.Ref()
	doc := store.Document{DocumentRef: ref, Fields: ev.Data()}
	at := eventTime(doc.Fields)
	if at.IsZero() {
		at = e.now()
	}

	var (
		outcome Outcome
		rm      *remirror
	)
	err := e.rel.Transaction(ctx, func(tx store.Tx) error {
		outcome, rm = OutcomeApplied, nil

		snap, err := h.Snapshot(ctx, tx, ref.ID)
		if err != nil {
			return err
		}
		audit := AuditEvent{
			Source:   models.SourceDocumentStore,
			Table:    h.EntityType(),
			RecordID: ref.ID,
			Action:   ev.Action(),
			New:      doc.Fields,
			At:       at,
			Hash:     hash,
		}
		if snap != nil {
			audit.Old = snap.Fields
		}

		if _, ok := ev.(store.Deleted); ok {
			if snap == nil {
				// The row is gone. A recorded empty hash means this delete
				// was applied already, whatever timestamp the event carries.
				state, err := e.state.Get(ctx, tx, h.EntityType(), ref.ID)
				if err != nil {
					return err
				}
				if state != nil && state.DataHash == "" {
					outcome = OutcomeDuplicate
					return nil
				}
			} else {
				audit.Hash = snap.Hash
			}
			audit.New = nil
			if dup, err := e.logAudit(ctx, tx, audit); err != nil || dup {
				outcome = OutcomeDuplicate
				return err
			}
			if err := h.ApplyDelete(ctx, tx, doc); err != nil {
				return err
			}
			return e.state.Update(ctx, tx, h.EntityType(), ref.ID, "", models.DirectionDocToRel)
		}

		state, err := e.state.Get(ctx, tx, h.EntityType(), ref.ID)
		if err != nil {
			return err
		}

		if snap != nil && snap.Hash != hash && !Unchanged(state, hash) && (state == nil || snap.Hash != state.DataHash) {
			res, err := e.conflicts.Resolve(snap.candidate(), documentCandidate(fields, doc.Fields))
			if err != nil {
				return err
			}
			audit.New = res.auditEnvelope()
			if dup, err := e.logAudit(ctx, tx, audit); err != nil || dup {
				outcome = OutcomeDuplicate
				return err
			}
			e.metrics.conflicts.WithLabelValues(h.EntityType(), string(res.Winner)).Inc()
			e.logger.Info().
				Str("document", ref.String()).
				Str("policy", string(res.Policy)).
				Str("winner", string(res.Winner)).
				Str("reason", res.Reason).
				Msg("Resolved sync conflict")

			if res.Winner == SideDocument {
				outcome = OutcomeConflictDocumentWon
				if err := h.ApplyUpdate(ctx, tx, doc); err != nil {
					return err
				}
				return e.state.Update(ctx, tx, h.EntityType(), ref.ID, hash, models.DirectionDocToRel)
			}

			outcome = OutcomeConflictRelationalWon
			entityID, err := e.entityID(ctx, tx, h, ref.ID)
			if err != nil {
				return err
			}
			data, err := h.Load(ctx, tx, entityID)
			if err != nil {
				return err
			}
			if data != nil {
				rm = &remirror{entityID: entityID, data: data}
			}
			return nil
		}

		if dup, err := e.logAudit(ctx, tx, audit); err != nil || dup {
			outcome = OutcomeDuplicate
			return err
		}
		switch {
		case Unchanged(state, hash):
			outcome = OutcomeUnchanged
			return errRollback
		case snap != nil && snap.Hash == hash:
			outcome = OutcomeRefreshed
		case ev.Action() == models.ActionCreate:
			if err := h.ApplyCreate(ctx, tx, doc); err != nil {
				return err
			}
		default:
			if err := h.ApplyUpdate(ctx, tx, doc); err != nil {
				return err
			}
		}
		return e.state.Update(ctx, tx, h.EntityType(), ref.ID, hash, models.DirectionDocToRel)
	})
	if errors.Is(err, errRollback) {
		err = nil
	}
	if err != nil {
		return OutcomeFailed, nil, err
	}
	return outcome, rm, nil
}

// logAudit records ev and reports whether it was a duplicate.
func (e *Engine) logAudit(ctx context.Context, tx store.Tx, ev AuditEvent) (bool, error) {
	if ev.ActorID == "" {
		ev.ActorID = actorFrom(ctx)
	}
	status, err := e.audit.Log(ctx, tx, ev)
	if err != nil {
		return false, err
	}
	return status == AuditDuplicate, nil
}

// recordEventFailure persists a document to relational sync error together
// with a failed audit entry.
func (e *Engine) recordEventFailure(ctx context.Context, h EntitySyncHandler, ev store.ChangeEvent, cause error) {
	ref := ev.Ref()
	payload, err := json.Marshal(failedEvent{
		Document: store.Document{DocumentRef: ref, Fields: ev.Data()},
		Action:   ev.Action(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("document", ref.String()).Msg("Failed to encode failed event")
	}
	e.recordFailure(ctx, &models.SyncError{
		EntityType: h.EntityType(),
		EntityID:   ref.ID,
		Direction:  models.DirectionDocToRel,
		Action:     ev.Action(),
		FailedData: payload,
	}, AuditEvent{
		Source:   models.SourceDocumentStore,
		Table:    h.EntityType(),
		RecordID: ref.ID,
		Action:   ev.Action(),
		New:      ev.Data(),
		At:       eventTime(ev.Data()),
	}, cause)
}

// recordFailure persists rec and a failed audit entry. It runs detached from
// ctx so that an expired event still leaves a trace.
func (e *Engine) recordFailure(ctx context.Context, rec *models.SyncError, audit AuditEvent, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureTimeout)
	defer cancel()

	now := e.now()
	rec.ErrorType = classify(cause)
	rec.ErrorMessage = cause.Error()
	rec.MaxRetries = e.opts.MaxRetries
	rec.Status = models.SyncErrorPending
	rec.NextRetryAt = now
	rec.CreatedAt = now
	rec.UpdatedAt = now
	audit.Err = cause
	if audit.At.IsZero() {
		audit.At = now
	}

	err := e.rel.Transaction(ctx, func(tx store.Tx) error {
		if err := tx.CreateSyncError(ctx, rec); err != nil {
			return err
		}
		_, err := e.logAudit(ctx, tx, audit)
		return err
	})

	e.metrics.syncErrors.WithLabelValues(string(rec.Direction), rec.ErrorType).Inc()
	logEvent := e.logger.Error()
	if rec.ErrorType == models.ErrorTypeMappingInconsistency {
		logEvent = e.logger.Warn().Bool("mapping_inconsistency", true)
	}
	logEvent.Err(cause).
		Str("entity_type", rec.EntityType).
		Str("entity_id", rec.EntityID).
		Str("direction", string(rec.Direction)).
		Str("error_type", rec.ErrorType).
		Msg("Sync failed")
	if err != nil {
		e.logger.Error().Err(err).
			Str("entity_type", rec.EntityType).
			Str("entity_id", rec.EntityID).
			Msg("Failed to persist sync error")
	}
}
