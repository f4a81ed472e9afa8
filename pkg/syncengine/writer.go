package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

// Writer performs application writes on the relational store and mirrors
// them to the document store. Every method succeeds once the relational
// transaction commits; mirror failures end up in the sync error queue.
type Writer struct {
	engine *Engine
}

// NewWriter returns a writer backed by e.
func NewWriter(e *Engine) *Writer {
	return &Writer{engine: e}
}

// stamp sets the creation time when unset and the update time to now.
func (w *Writer) stamp(created, updated *time.Time) {
	now := w.engine.now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// SaveUser creates or updates a user.
func (w *Writer) SaveUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("%w: user without id", ErrInvalidDocument)
	}
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		action := models.ActionCreate
		if old != nil {
			action = models.ActionUpdate
			if user.CreatedAt.IsZero() {
				user.CreatedAt = old.CreatedAt
			}
		}
		w.stamp(&user.CreatedAt, &user.UpdatedAt)
		if err := tx.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		return mutation(models.User{}.TableName(), user.ID, action, user, old)
	})
}

// DeleteUser deletes a user and its memberships.
func (w *Writer) DeleteUser(ctx context.Context, id string) error {
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteUser(ctx, id); err != nil {
			return nil, err
		}
		return mutation(models.User{}.TableName(), id, models.ActionDelete, nil, old)
	})
}

// CreateGroup creates a group, assigns its document id and returns it.
func (w *Writer) CreateGroup(ctx context.Context, group *models.Group) (string, error) {
	var externalID string
	err := w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		group.ID = 0
		w.stamp(&group.CreatedAt, &group.UpdatedAt)
		var err error
		if externalID, err = w.engine.mappings.Assign(ctx, tx, group); err != nil {
			return nil, err
		}
		data, err := groupPayload(group, externalID)
		if err != nil {
			return nil, err
		}
		return []Mutation{{
			EntityType: models.Group{}.TableName(),
			EntityID:   groupEntityID(group.ID),
			Action:     models.ActionCreate,
			Data:       data,
		}}, nil
	})
	if err != nil {
		return "", err
	}
	return externalID, nil
}

// UpdateGroup updates an existing group.
func (w *Writer) UpdateGroup(ctx context.Context, group *models.Group) error {
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetGroup(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		if old == nil {
			return nil, fmt.Errorf("%w: group %d does not exist", ErrInvalidDocument, group.ID)
		}
		externalID, err := w.engine.mappings.Reverse(ctx, tx, group.ID)
		if err != nil {
			return nil, err
		}
		group.CreatedAt = old.CreatedAt
		w.stamp(&group.CreatedAt, &group.UpdatedAt)
		if err := tx.SaveGroup(ctx, group); err != nil {
			return nil, err
		}
		data, err := groupPayload(group, externalID)
		if err != nil {
			return nil, err
		}
		oldData, err := groupPayload(old, externalID)
		if err != nil {
			return nil, err
		}
		return []Mutation{{
			EntityType: models.Group{}.TableName(),
			EntityID:   groupEntityID(group.ID),
			Action:     models.ActionUpdate,
			Data:       data,
			Old:        oldData,
		}}, nil
	})
}

// DeleteGroup deletes a group with its files, tags, memberships and mapping.
func (w *Writer) DeleteGroup(ctx context.Context, id int64) error {
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		if old == nil {
			return nil, nil
		}
		externalID, err := w.engine.mappings.Reverse(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteGroup(ctx, id); err != nil {
			return nil, err
		}
		oldData, err := groupPayload(old, externalID)
		if err != nil {
			return nil, err
		}
		return []Mutation{{
			EntityType: models.Group{}.TableName(),
			EntityID:   groupEntityID(id),
			Action:     models.ActionDelete,
			Data:       map[string]any{"external_id": externalID},
			Old:        oldData,
		}}, nil
	})
}

// SaveMembership creates or updates a membership. An empty id is generated.
func (w *Writer) SaveMembership(ctx context.Context, membership *models.GroupMembership) error {
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	if membership.Role == "" {
		membership.Role = models.RoleMember
	}
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetMembership(ctx, membership.ID)
		if err != nil {
			return nil, err
		}
		action := models.ActionCreate
		if old != nil {
			action = models.ActionUpdate
			membership.JoinedAt = old.JoinedAt
		}
		w.stamp(&membership.JoinedAt, &membership.UpdatedAt)
		if err := tx.SaveMembership(ctx, membership); err != nil {
			return nil, err
		}
		return mutation(models.GroupMembership{}.TableName(), membership.ID, action, membership, old)
	})
}

// DeleteMembership deletes a membership.
func (w *Writer) DeleteMembership(ctx context.Context, id string) error {
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetMembership(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteMembership(ctx, id); err != nil {
			return nil, err
		}
		return mutation(models.GroupMembership{}.TableName(), id, models.ActionDelete, nil, old)
	})
}

// SaveFile creates or updates file metadata. An empty id is generated.
func (w *Writer) SaveFile(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetFile(ctx, file.ID)
		if err != nil {
			return nil, err
		}
		action := models.ActionCreate
		if old != nil {
			action = models.ActionUpdate
			file.CreatedAt = old.CreatedAt
		}
		w.stamp(&file.CreatedAt, &file.UpdatedAt)
		if err := tx.SaveFile(ctx, file); err != nil {
			return nil, err
		}
		return mutation(models.File{}.TableName(), file.ID, action, file, old)
	})
}

// DeleteFile deletes file metadata.
func (w *Writer) DeleteFile(ctx context.Context, id string) error {
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetFile(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteFile(ctx, id); err != nil {
			return nil, err
		}
		return mutation(models.File{}.TableName(), id, models.ActionDelete, nil, old)
	})
}

// SaveTag creates or updates a tag. An empty id is generated.
func (w *Writer) SaveTag(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetTag(ctx, tag.ID)
		if err != nil {
			return nil, err
		}
		action := models.ActionCreate
		if old != nil {
			action = models.ActionUpdate
			tag.CreatedAt = old.CreatedAt
		}
		w.stamp(&tag.CreatedAt, &tag.UpdatedAt)
		if err := tx.SaveTag(ctx, tag); err != nil {
			return nil, err
		}
		return mutation(models.Tag{}.TableName(), tag.ID, action, tag, old)
	})
}

// DeleteTag deletes a tag.
func (w *Writer) DeleteTag(ctx context.Context, id string) error {
	return w.engine.WithForwardSync(ctx, func(ctx context.Context, tx store.Tx) ([]Mutation, error) {
		old, err := tx.GetTag(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteTag(ctx, id); err != nil {
			return nil, err
		}
		return mutation(models.Tag{}.TableName(), id, models.ActionDelete, nil, old)
	})
}

// Push mirrors the current relational state of an entity without changing it.
func (w *Writer) Push(ctx context.Context, entityType, entityID string) error {
	h, err := w.engine.handlerForType(entityType)
	if err != nil {
		return err
	}
	data, err := h.Load(ctx, w.engine.rel, entityID)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: %s/%s does not exist", ErrInvalidDocument, entityType, entityID)
	}
	return w.engine.SyncRelationalToDocument(ctx, entityType, entityID, data, models.ActionUpdate)
}

// mutation builds a single mutation from row values. A nil row yields a nil payload.
func mutation[T any](entityType, entityID string, action models.AuditAction, row, old *T) ([]Mutation, error) {
	m := Mutation{EntityType: entityType, EntityID: entityID, Action: action}
	var err error
	if row != nil {
		if m.Data, err = toPayload(row); err != nil {
			return nil, err
		}
	}
	if old != nil {
		if m.Old, err = toPayload(old); err != nil {
			return nil, err
		}
	}
	return []Mutation{m}, nil
}
