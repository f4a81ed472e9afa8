package syncengine

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

type membershipHandler struct{ handlerBase }

func (h *membershipHandler) Collection() string { return CollectionMemberships }
func (h *membershipHandler) EntityType() string { return models.GroupMembership{}.TableName() }

func (h *membershipHandler) Fields(doc map[string]any) (map[string]any, error) {
	return map[string]any{
		"groupId": stringField(doc, "groupId"),
		"userId":  stringField(doc, "userId"),
		"role":    membershipRole(doc),
	}, nil
}

func membershipRole(doc map[string]any) string {
	if role := stringField(doc, "role"); role != "" {
		return role
	}
	return string(models.RoleMember)
}

func (h *membershipHandler) Snapshot(ctx context.Context, tx store.Tx, docID string) (*Snapshot, error) {
	m, err := tx.GetMembership(ctx, docID)
	if err != nil || m == nil {
		return nil, err
	}
	groupID, err := h.mappings.Reverse(ctx, tx, m.GroupID)
	if err != nil {
		return nil, err
	}
	return newSnapshot(map[string]any{
		"groupId": groupID,
		"userId":  m.UserID,
		"role":    string(m.Role),
	}, m.JoinedAt, m.UpdatedAt)
}

func (h *membershipHandler) ApplyCreate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *membershipHandler) ApplyUpdate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *membershipHandler) save(ctx context.Context, tx store.Tx, doc store.Document) error {
	userID := stringField(doc.Fields, "userId")
	if userID == "" {
		return fmt.Errorf("%w: %s has no userId", ErrInvalidDocument, doc.DocumentRef)
	}
	groupID, err := h.groupKey(ctx, tx, doc)
	if err != nil {
		return err
	}
	return tx.SaveMembership(ctx, &models.GroupMembership{
		ID:        doc.ID,
		GroupID:   groupID,
		UserID:    userID,
		Role:      models.MembershipRole(membershipRole(doc.Fields)),
		JoinedAt:  h.created(doc.Fields, "joinedAt"),
		UpdatedAt: h.updated(doc.Fields),
	})
}

func (h *membershipHandler) ApplyDelete(ctx context.Context, tx store.Tx, doc store.Document) error {
	return tx.DeleteMembership(ctx, doc.ID)
}

func (h *membershipHandler) DocumentID(_ context.Context, _ store.Tx, entityID string, _ map[string]any) (string, error) {
	return entityID, nil
}

func (h *membershipHandler) Load(ctx context.Context, tx store.Tx, entityID string) (map[string]any, error) {
	m, err := tx.GetMembership(ctx, entityID)
	if err != nil || m == nil {
		return nil, err
	}
	return toPayload(m)
}

func (h *membershipHandler) ToDocument(ctx context.Context, tx store.Tx, data map[string]any) (map[string]any, error) {
	m, err := fromPayload[models.GroupMembership](data)
	if err != nil {
		return nil, err
	}
	groupID, err := h.mappings.Reverse(ctx, tx, m.GroupID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"groupId":   groupID,
		"userId":    m.UserID,
		"role":      string(m.Role),
		"joinedAt":  m.JoinedAt.UTC(),
		"updatedAt": m.UpdatedAt.UTC(),
	}, nil
}

func (h *membershipHandler) Dependents(context.Context, store.DocumentStore, string) ([]store.DocumentRef, error) {
	return nil, nil
}
