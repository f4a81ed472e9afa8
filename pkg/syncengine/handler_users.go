package syncengine

import (
	"context"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

type userHandler struct{ handlerBase }

func (h *userHandler) Collection() string { return CollectionUsers }
func (h *userHandler) EntityType() string { return models.User{}.TableName() }

func (h *userHandler) Fields(doc map[string]any) (map[string]any, error) {
	return map[string]any{
		"email":       stringField(doc, "email"),
		"displayName": stringField(doc, "displayName"),
		"photoURL":    stringField(doc, "photoURL"),
	}, nil
}

func (h *userHandler) Snapshot(ctx context.Context, tx store.Tx, docID string) (*Snapshot, error) {
	u, err := tx.GetUser(ctx, docID)
	if err != nil || u == nil {
		return nil, err
	}
	return newSnapshot(map[string]any{
		"email":       u.Email,
		"displayName": u.DisplayName,
		"photoURL":    u.PhotoURL,
	}, u.CreatedAt, u.UpdatedAt)
}

func (h *userHandler) ApplyCreate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc, nil)
}

func (h *userHandler) ApplyUpdate(ctx context.Context, tx store.Tx, doc store.Document) error {
	existing, err := tx.GetUser(ctx, doc.ID)
	if err != nil {
		return err
	}
	return h.save(ctx, tx, doc, existing)
}

func (h *userHandler) save(ctx context.Context, tx store.Tx, doc store.Document, existing *models.User) error {
	u := &models.User{
		ID:          doc.ID,
		Email:       stringField(doc.Fields, "email"),
		DisplayName: stringField(doc.Fields, "displayName"),
		PhotoURL:    stringField(doc.Fields, "photoURL"),
		CreatedAt:   h.created(doc.Fields, "createdAt"),
		UpdatedAt:   h.updated(doc.Fields),
	}
	if existing != nil && timeField(doc.Fields, "createdAt").IsZero() {
		u.CreatedAt = existing.CreatedAt
	}
	return tx.SaveUser(ctx, u)
}

func (h *userHandler) ApplyDelete(ctx context.Context, tx store.Tx, doc store.Document) error {
	return tx.DeleteUser(ctx, doc.ID)
}

func (h *userHandler) DocumentID(_ context.Context, _ store.Tx, entityID string, _ map[string]any) (string, error) {
	return entityID, nil
}

func (h *userHandler) Load(ctx context.Context, tx store.Tx, entityID string) (map[string]any, error) {
	u, err := tx.GetUser(ctx, entityID)
	if err != nil || u == nil {
		return nil, err
	}
	return toPayload(u)
}

func (h *userHandler) ToDocument(_ context.Context, _ store.Tx, data map[string]any) (map[string]any, error) {
	u, err := fromPayload[models.User](data)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"email":       u.Email,
		"displayName": u.DisplayName,
		"photoURL":    u.PhotoURL,
		"createdAt":   u.CreatedAt.UTC(),
		"updatedAt":   u.UpdatedAt.UTC(),
	}, nil
}

func (h *userHandler) Dependents(ctx context.Context, docs store.DocumentStore, docID string) ([]store.DocumentRef, error) {
	return byGroup(ctx, docs, "userId", docID, CollectionMemberships)
}
