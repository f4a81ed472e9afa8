package syncengine

import (
	"context"
	"strconv"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

type groupHandler struct{ handlerBase }

func (h *groupHandler) Collection() string { return CollectionGroups }
func (h *groupHandler) EntityType() string { return models.Group{}.TableName() }

func (h *groupHandler) Fields(doc map[string]any) (map[string]any, error) {
	return map[string]any{
		"name":        stringField(doc, "name"),
		"description": stringField(doc, "description"),
		"ownerId":     stringField(doc, "ownerId"),
	}, nil
}

func (h *groupHandler) Snapshot(ctx context.Context, tx store.Tx, docID string) (*Snapshot, error) {
	id, ok, err := h.mappings.Lookup(ctx, tx, docID)
	if err != nil || !ok {
		return nil, err
	}
	g, err := tx.GetGroup(ctx, id)
	if err != nil || g == nil {
		return nil, err
	}
	return newSnapshot(groupFields(g), g.CreatedAt, g.UpdatedAt)
}

func groupFields(g *models.Group) map[string]any {
	return map[string]any{
		"name":        g.Name,
		"description": g.Description,
		"ownerId":     g.OwnerID,
	}
}

func (h *groupHandler) ApplyCreate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *groupHandler) ApplyUpdate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *groupHandler) save(ctx context.Context, tx store.Tx, doc store.Document) error {
	seed := MappingSeed{
		Name:        stringField(doc.Fields, "name"),
		Description: stringField(doc.Fields, "description"),
		OwnerID:     stringField(doc.Fields, "ownerId"),
		CreatedAt:   timeField(doc.Fields, "createdAt"),
		UpdatedAt:   eventTime(doc.Fields),
	}
	id, created, err := h.mappings.Resolve(ctx, tx, doc.ID, seed)
	if err != nil || created {
		return err
	}

	g, err := tx.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if g == nil {
		g = &models.Group{ID: id, CreatedAt: h.created(doc.Fields, "createdAt")}
	}
	g.Name = seed.Name
	g.Description = seed.Description
	g.OwnerID = seed.OwnerID
	g.UpdatedAt = h.updated(doc.Fields)
	if !seed.CreatedAt.IsZero() {
		g.CreatedAt = seed.CreatedAt
	}
	return tx.SaveGroup(ctx, g)
}

func (h *groupHandler) ApplyDelete(ctx context.Context, tx store.Tx, doc store.Document) error {
	id, ok, err := h.mappings.Lookup(ctx, tx, doc.ID)
	if err != nil || !ok {
		return err
	}
	return tx.DeleteGroup(ctx, id)
}

// DocumentID prefers the external_id carried in the payload, which is the
// only way to find the document once the mapping was deleted.
func (h *groupHandler) DocumentID(ctx context.Context, tx store.Tx, entityID string, data map[string]any) (string, error) {
	if ext := stringField(data, "external_id"); ext != "" {
		return ext, nil
	}
	id, err := parseGroupKey(entityID)
	if err != nil {
		return "", err
	}
	return h.mappings.Reverse(ctx, tx, id)
}

func (h *groupHandler) Load(ctx context.Context, tx store.Tx, entityID string) (map[string]any, error) {
	id, err := parseGroupKey(entityID)
	if err != nil {
		return nil, err
	}
	g, err := tx.GetGroup(ctx, id)
	if err != nil || g == nil {
		return nil, err
	}
	ext, err := h.mappings.Reverse(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return groupPayload(g, ext)
}

func groupPayload(g *models.Group, externalID string) (map[string]any, error) {
	data, err := toPayload(g)
	if err != nil {
		return nil, err
	}
	data["external_id"] = externalID
	return data, nil
}

func (h *groupHandler) ToDocument(_ context.Context, _ store.Tx, data map[string]any) (map[string]any, error) {
	g, err := fromPayload[models.Group](data)
	if err != nil {
		return nil, err
	}
	fields := groupFields(g)
	fields["createdAt"] = g.CreatedAt.UTC()
	fields["updatedAt"] = g.UpdatedAt.UTC()
	return fields, nil
}

func (h *groupHandler) Dependents(ctx context.Context, docs store.DocumentStore, docID string) ([]store.DocumentRef, error) {
	return byGroup(ctx, docs, "groupId", docID, CollectionMemberships, CollectionFiles, CollectionTags)
}

func groupEntityID(id int64) string {
	return strconv.FormatInt(id, 10)
}
