package syncengine

import (
	"context"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

type tagHandler struct{ handlerBase }

func (h *tagHandler) Collection() string { return CollectionTags }
func (h *tagHandler) EntityType() string { return models.Tag{}.TableName() }

func (h *tagHandler) Fields(doc map[string]any) (map[string]any, error) {
	return map[string]any{
		"groupId": stringField(doc, "groupId"),
		"name":    stringField(doc, "name"),
		"color":   stringField(doc, "color"),
	}, nil
}

func (h *tagHandler) Snapshot(ctx context.Context, tx store.Tx, docID string) (*Snapshot, error) {
	t, err := tx.GetTag(ctx, docID)
	if err != nil || t == nil {
		return nil, err
	}
	groupID, err := h.mappings.Reverse(ctx, tx, t.GroupID)
	if err != nil {
		return nil, err
	}
	return newSnapshot(map[string]any{
		"groupId": groupID,
		"name":    t.Name,
		"color":   t.Color,
	}, t.CreatedAt, t.UpdatedAt)
}

func (h *tagHandler) ApplyCreate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *tagHandler) ApplyUpdate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *tagHandler) save(ctx context.Context, tx store.Tx, doc store.Document) error {
	groupID, err := h.groupKey(ctx, tx, doc)
	if err != nil {
		return err
	}
	return tx.SaveTag(ctx, &models.Tag{
		ID:        doc.ID,
		GroupID:   groupID,
		Name:      stringField(doc.Fields, "name"),
		Color:     stringField(doc.Fields, "color"),
		CreatedAt: h.created(doc.Fields, "createdAt"),
		UpdatedAt: h.updated(doc.Fields),
	})
}

func (h *tagHandler) ApplyDelete(ctx context.Context, tx store.Tx, doc store.Document) error {
	return tx.DeleteTag(ctx, doc.ID)
}

func (h *tagHandler) DocumentID(_ context.Context, _ store.Tx, entityID string, _ map[string]any) (string, error) {
	return entityID, nil
}

func (h *tagHandler) Load(ctx context.Context, tx store.Tx, entityID string) (map[string]any, error) {
	t, err := tx.GetTag(ctx, entityID)
	if err != nil || t == nil {
		return nil, err
	}
	return toPayload(t)
}

func (h *tagHandler) ToDocument(ctx context.Context, tx store.Tx, data map[string]any) (map[string]any, error) {
	t, err := fromPayload[models.Tag](data)
	if err != nil {
		return nil, err
	}
	groupID, err := h.mappings.Reverse(ctx, tx, t.GroupID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"groupId":   groupID,
		"name":      t.Name,
		"color":     t.Color,
		"createdAt": t.CreatedAt.UTC(),
		"updatedAt": t.UpdatedAt.UTC(),
	}, nil
}

func (h *tagHandler) Dependents(context.Context, store.DocumentStore, string) ([]store.DocumentRef, error) {
	return nil, nil
}
