package syncengine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

// Watched collections. Each collection name equals the relational table it
// mirrors, which is also the entity type recorded in sync_state.
const (
	CollectionUsers       = "users"
	CollectionGroups      = "groups"
	CollectionMemberships = "group_memberships"
	CollectionFiles       = "files"
	CollectionTags        = "tags"
)

// EntitySyncHandler maps one collection onto its relational table.
//
// The apply methods run inside the listener's transaction and must perform all
// relational writes through tx. The forward methods convert relational payloads,
// the JSON object form of a row, into documents.
type EntitySyncHandler interface {
	Collection() string
	EntityType() string

	// Fields selects the synced field set of a document. Timestamps are excluded,
	// so both stores hash to the same value for the same content.
	Fields(doc map[string]any) (map[string]any, error)

	// Snapshot returns the relational version of a document, or nil.
	Snapshot(ctx context.Context, tx store.Tx, docID string) (*Snapshot, error)

	ApplyCreate(ctx context.Context, tx store.Tx, doc store.Document) error
	ApplyUpdate(ctx context.Context, tx store.Tx, doc store.Document) error
	ApplyDelete(ctx context.Context, tx store.Tx, doc store.Document) error

	// DocumentID returns the document id of a relational entity.
	DocumentID(ctx context.Context, tx store.Tx, entityID string, data map[string]any) (string, error)

	// Load returns the payload of a relational row, or nil when it does not exist.
	Load(ctx context.Context, tx store.Tx, entityID string) (map[string]any, error)

	// ToDocument converts a relational payload to document fields.
	ToDocument(ctx context.Context, tx store.Tx, data map[string]any) (map[string]any, error)

	// Dependents lists the documents removed together with docID.
	Dependents(ctx context.Context, docs store.DocumentStore, docID string) ([]store.DocumentRef, error)
}

// Snapshot is the relational version of a document in document terms.
type Snapshot struct {
	Fields    map[string]any
	Hash      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSnapshot(fields map[string]any, createdAt, updatedAt time.Time) (*Snapshot, error) {
	hash, err := DataHash(fields)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Fields: fields, Hash: hash, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

func (s *Snapshot) candidate() Candidate {
	return Candidate{Side: SideRelational, Fields: s.Fields, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

func documentCandidate(fields, doc map[string]any) Candidate {
	created := timeField(doc, "createdAt")
	if created.IsZero() {
		created = timeField(doc, "joinedAt")
	}
	return Candidate{Side: SideDocument, Fields: fields, CreatedAt: created, UpdatedAt: timeField(doc, "updatedAt")}
}

// handlerBase holds what every handler needs.
type handlerBase struct {
	mappings *MappingResolver
	now      func() time.Time
}

// groupKey resolves the groupId field of a document, creating the group when
// it was never seen.
func (b handlerBase) groupKey(ctx context.Context, tx store.Tx, doc store.Document) (int64, error) {
	externalID := stringField(doc.Fields, "groupId")
	if externalID == "" {
		return 0, fmt.Errorf("%w: %s has no groupId", ErrInvalidDocument, doc.DocumentRef)
	}
	id, created, err := b.mappings.Resolve(ctx, tx, externalID, MappingSeed{})
	if err != nil || !created {
		return id, err
	}
	return id, b.recordPlaceholder(ctx, tx, externalID, id)
}

// recordPlaceholder records the sync state of a group created only to satisfy
// a reference, so the group's own document later applies as an update rather
// than conflicting with the placeholder.
func (b handlerBase) recordPlaceholder(ctx context.Context, tx store.Tx, externalID string, id int64) error {
	g, err := tx.GetGroup(ctx, id)
	if err != nil || g == nil {
		return err
	}
	hash, err := DataHash(groupFields(g))
	if err != nil {
		return err
	}
	return tx.UpsertSyncState(ctx, &models.SyncState{
		EntityType:    CollectionGroups,
		EntityID:      externalID,
		DataHash:      hash,
		LastSyncedAt:  b.now(),
		SyncDirection: models.DirectionDocToRel,
	})
}

func (b handlerBase) groupDocumentID(ctx context.Context, tx store.Tx, data map[string]any) (string, error) {
	id, err := intField(data, "group_id")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return b.mappings.Reverse(ctx, tx, id)
}

func (b handlerBase) created(doc map[string]any, key string) time.Time {
	return orNow(timeField(doc, key), b.now())
}

func (b handlerBase) updated(doc map[string]any) time.Time {
	return orNow(eventTime(doc), b.now())
}

func parseGroupKey(entityID string) (int64, error) {
	id, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: group key %q", ErrInvalidDocument, entityID)
	}
	return id, nil
}

// byGroup lists documents of collections whose field refers to docID.
func byGroup(ctx context.Context, docs store.DocumentStore, field, docID string, collections ...string) ([]store.DocumentRef, error) {
	var refs []store.DocumentRef
	for _, c := range collections {
		found, err := docs.ListByField(ctx, c, field, docID)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s by %s: %w", c, field, err)
		}
		for _, d := range found {
			refs = append(refs, d.DocumentRef)
		}
	}
	return refs, nil
}

// DefaultHandlers returns handlers for every watched collection.
func DefaultHandlers(mappings *MappingResolver, now func() time.Time) []EntitySyncHandler {
	b := handlerBase{mappings: mappings, now: now}
	return []EntitySyncHandler{
		&userHandler{b},
		&groupHandler{b},
		&membershipHandler{b},
		&fileHandler{b},
		&tagHandler{b},
	}
}
