package syncengine

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

type fileHandler struct{ handlerBase }

func (h *fileHandler) Collection() string { return CollectionFiles }
func (h *fileHandler) EntityType() string { return models.File{}.TableName() }

func (h *fileHandler) Fields(doc map[string]any) (map[string]any, error) {
	size, err := intField(doc, "size")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return map[string]any{
		"groupId":     stringField(doc, "groupId"),
		"uploaderId":  stringField(doc, "uploaderId"),
		"name":        stringField(doc, "name"),
		"mimeType":    stringField(doc, "mimeType"),
		"size":        size,
		"storagePath": stringField(doc, "storagePath"),
	}, nil
}

func (h *fileHandler) Snapshot(ctx context.Context, tx store.Tx, docID string) (*Snapshot, error) {
	f, err := tx.GetFile(ctx, docID)
	if err != nil || f == nil {
		return nil, err
	}
	groupID, err := h.mappings.Reverse(ctx, tx, f.GroupID)
	if err != nil {
		return nil, err
	}
	return newSnapshot(fileFields(f, groupID), f.CreatedAt, f.UpdatedAt)
}

func fileFields(f *models.File, groupID string) map[string]any {
	return map[string]any{
		"groupId":     groupID,
		"uploaderId":  f.UploaderID,
		"name":        f.Name,
		"mimeType":    f.MimeType,
		"size":        f.Size,
		"storagePath": f.StoragePath,
	}
}

func (h *fileHandler) ApplyCreate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *fileHandler) ApplyUpdate(ctx context.Context, tx store.Tx, doc store.Document) error {
	return h.save(ctx, tx, doc)
}

func (h *fileHandler) save(ctx context.Context, tx store.Tx, doc store.Document) error {
	fields, err := h.Fields(doc.Fields)
	if err != nil {
		return err
	}
	groupID, err := h.groupKey(ctx, tx, doc)
	if err != nil {
		return err
	}
	return tx.SaveFile(ctx, &models.File{
		ID:          doc.ID,
		GroupID:     groupID,
		UploaderID:  fields["uploaderId"].(string),
		Name:        fields["name"].(string),
		MimeType:    fields["mimeType"].(string),
		Size:        fields["size"].(int64),
		StoragePath: fields["storagePath"].(string),
		CreatedAt:   h.created(doc.Fields, "createdAt"),
		UpdatedAt:   h.updated(doc.Fields),
	})
}

func (h *fileHandler) ApplyDelete(ctx context.Context, tx store.Tx, doc store.Document) error {
	return tx.DeleteFile(ctx, doc.ID)
}

func (h *fileHandler) DocumentID(_ context.Context, _ store.Tx, entityID string, _ map[string]any) (string, error) {
	return entityID, nil
}

func (h *fileHandler) Load(ctx context.Context, tx store.Tx, entityID string) (map[string]any, error) {
	f, err := tx.GetFile(ctx, entityID)
	if err != nil || f == nil {
		return nil, err
	}
	return toPayload(f)
}

func (h *fileHandler) ToDocument(ctx context.Context, tx store.Tx, data map[string]any) (map[string]any, error) {
	f, err := fromPayload[models.File](data)
	if err != nil {
		return nil, err
	}
	groupID, err := h.mappings.Reverse(ctx, tx, f.GroupID)
	if err != nil {
		return nil, err
	}
	fields := fileFields(f, groupID)
	fields["createdAt"] = f.CreatedAt.UTC()
	fields["updatedAt"] = f.UpdatedAt.UTC()
	return fields, nil
}

func (h *fileHandler) Dependents(context.Context, store.DocumentStore, string) ([]store.DocumentRef, error) {
	return nil, nil
}
