package store

import (
	"context"

	"github.com/surrealdb/surrealsync/pkg/models"
)

// DocumentRef identifies a document by collection and id.
type DocumentRef struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// String returns the ref as collection/id.
func (r DocumentRef) String() string {
	return r.Collection + "/" + r.ID
}

// Document is a document with its fields. Fields never contain the id.
type Document struct {
	DocumentRef
	Fields map[string]any `json:"fields"`
}

// DocumentStore is the real-time store.
type DocumentStore interface {
	// Get returns the document, or nil when it does not exist.
	Get(ctx context.Context, ref DocumentRef) (*Document, error)

	// Set creates or replaces the document.
	Set(ctx context.Context, ref DocumentRef, fields map[string]any) error

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, ref DocumentRef) error

	// DeleteBatch removes all refs atomically.
	DeleteBatch(ctx context.Context, refs []DocumentRef) error

	// ListByField returns the documents of collection whose field equals value.
	ListByField(ctx context.Context, collection, field string, value any) ([]*Document, error)

	// Subscribe starts delivering changes of collection.
	Subscribe(ctx context.Context, collection string) (Subscription, error)

	Close(ctx context.Context) error
}

// Subscription is an active change subscription on one collection.
//
// Events are delivered at least once and in order per document. The channel
// is closed after Close returns or when the underlying stream ends.
type Subscription interface {
	Collection() string
	Events() <-chan ChangeEvent
	Close(ctx context.Context) error
}

// ChangeEvent is one change observed on the document store. It is one of
// [Created], [Updated] or [Deleted].
type ChangeEvent interface {
	Ref() DocumentRef
	Action() models.AuditAction
	// Data is the document after the change, or the last known document for deletes.
	Data() map[string]any
	isChangeEvent()
}

// Created is delivered when a document is created.
type Created struct {
	Document
}

// Updated is delivered when a document is modified.
type Updated struct {
	Document
}

// Deleted is delivered when a document is removed. Fields holds the last known
// state when the store provides it.
type Deleted struct {
	Document
}

func (e Created) Ref() DocumentRef           { return e.DocumentRef }
func (e Created) Action() models.AuditAction { return models.ActionCreate }
func (e Created) Data() map[string]any       { return e.Fields }
func (Created) isChangeEvent()               {}

func (e Updated) Ref() DocumentRef           { return e.DocumentRef }
func (e Updated) Action() models.AuditAction { return models.ActionUpdate }
func (e Updated) Data() map[string]any       { return e.Fields }
func (Updated) isChangeEvent()               {}

func (e Deleted) Ref() DocumentRef           { return e.DocumentRef }
func (e Deleted) Action() models.AuditAction { return models.ActionDelete }
func (e Deleted) Data() map[string]any       { return e.Fields }
func (Deleted) isChangeEvent()               {}

// NewChangeEvent builds the event variant for action.
func NewChangeEvent(action models.AuditAction, doc Document) ChangeEvent {
	switch action {
	case models.ActionCreate:
		return Created{Document: doc}
	case models.ActionDelete:
		return Deleted{Document: doc}
	default:
		return Updated{Document: doc}
	}
}
