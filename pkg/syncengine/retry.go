package syncengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"go.opentelemetry.io/otel/attribute"
)

// RetryReport summarises one retry pass.
type RetryReport struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	// Exhausted counts records that failed their last automated attempt.
	Exhausted int `json:"exhausted"`
}

// RetryFailedSyncs replays due sync errors, oldest first.
//
// Relational to document errors are mirrored again, document to relational
// errors go through the listener path. A success resolves the record; a
// failure increments its retry count and schedules the next attempt. Records
// that run out of attempts stay in the table for manual inspection.
func (e *Engine) RetryFailedSyncs(ctx context.Context) (*RetryReport, error) {
	ctx, span := tracer.Start(ctx, "syncengine.RetryFailedSyncs")
	report := &RetryReport{}
	var err error
	defer func() {
		span.SetAttributes(
			attribute.Int("attempted", report.Attempted),
			attribute.Int("resolved", report.Resolved),
		)
		endSpan(span, err)
	}()

	var records []*models.SyncError
	records, err = e.rel.ListRetryableSyncErrors(ctx, e.now(), e.opts.RetryBatch)
	if err != nil {
		err = fmt.Errorf("failed to list retryable sync errors: %w", err)
		return report, err
	}

	for _, rec := range records {
		if err = e.limiter.Wait(ctx); err != nil {
			return report, err
		}
		report.Attempted++

		replayErr := e.replay(ctx, rec)
		now := e.now()
		if replayErr == nil {
			rec.MarkResolved(now)
			report.Resolved++
			e.metrics.retries.WithLabelValues("resolved").Inc()
		} else {
			next := e.backoff.NextRetryAt(rec, now)
			rec.MarkRetryFailed(replayErr.Error(), now, next)
			report.Failed++
			e.metrics.retries.WithLabelValues("failed").Inc()
			if rec.Exhausted() {
				report.Exhausted++
				e.logger.Warn().Err(replayErr).
					Uint64("sync_error_id", rec.ID).
					Str("entity_type", rec.EntityType).
					Str("entity_id", rec.EntityID).
					Int("retry_count", rec.RetryCount).
					Msg("Sync error exhausted its retries and needs manual attention")
			}
		}

		if err = e.rel.UpdateSyncError(ctx, rec); err != nil {
			err = fmt.Errorf("failed to update sync error %d: %w", rec.ID, err)
			return report, err
		}
	}

	if report.Attempted > 0 {
		e.logger.Info().
			Int("attempted", report.Attempted).
			Int("resolved", report.Resolved).
			Int("failed", report.Failed).
			Int("exhausted", report.Exhausted).
			Msg("Retry pass finished")
	}
	return report, nil
}

// replay attempts a failed sync again without recording a new sync error.
func (e *Engine) replay(ctx context.Context, rec *models.SyncError) error {
	h, err := e.handlerForType(rec.EntityType)
	if err != nil {
		return err
	}

	if rec.Direction == models.DirectionDocToRel {
		var fe failedEvent
		if len(rec.FailedData) > 0 {
			if err := json.Unmarshal(rec.FailedData, &fe); err != nil {
				return fmt.Errorf("%w: undecodable failed event: %v", ErrInvalidDocument, err)
			}
		}
		if fe.Collection == "" {
			fe.Collection = h.Collection()
		}
		if fe.ID == "" {
			fe.ID = rec.EntityID
		}
		if fe.Action == "" {
			fe.Action = rec.Action
		}
		_, err := e.handleEvent(ctx, h, store.NewChangeEvent(fe.Action, fe.Document))
		return err
	}

	stored, err := failedPayload(rec)
	if err != nil {
		return err
	}
	if rec.Action == models.ActionDelete {
		return e.mirror(ctx, rec.EntityType, rec.EntityID, stored, models.ActionDelete)
	}

	// The relational row is authoritative; the stored payload is never written.
	data, err := h.Load(ctx, e.rel, rec.EntityID)
	if err != nil {
		return err
	}
	if data != nil {
		return e.mirror(ctx, rec.EntityType, rec.EntityID, data, rec.Action)
	}

	// The row was deleted after the failure, so the document goes too. The
	// stored payload only locates it.
	docID, err := h.DocumentID(ctx, e.rel, rec.EntityID, stored)
	if err != nil {
		return err
	}
	doc, err := e.docs.Get(ctx, store.DocumentRef{Collection: h.Collection(), ID: docID})
	if err != nil {
		return err
	}
	e.logger.Debug().
		Uint64("sync_error_id", rec.ID).
		Str("entity_type", rec.EntityType).
		Str("entity_id", rec.EntityID).
		Bool("document_exists", doc != nil).
		Msg("Failed sync superseded by a delete")
	if doc == nil {
		return nil
	}
	return e.mirror(ctx, rec.EntityType, rec.EntityID, stored, models.ActionDelete)
}

// failedPayload decodes the row payload stored with a relational to document
// sync error. It is nil when nothing was stored.
func failedPayload(rec *models.SyncError) (map[string]any, error) {
	if len(rec.FailedData) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(rec.FailedData, &data); err != nil {
		return nil, fmt.Errorf("%w: undecodable failed payload: %v", ErrInvalidDocument, err)
	}
	return data, nil
}
