package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

const groupEntityType = "group"

// MappingSeed carries the values used to create a group row when an external
// id is seen for the first time.
type MappingSeed struct {
	Name        string
	Description string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MappingResolver translates between document ids of groups and their
// relational keys. All methods run inside the caller's transaction so that a
// mapping and its group row are created or removed together.
type MappingResolver struct {
	now func() time.Time
}

// Lookup returns the relational key of externalID without creating anything.
func (r *MappingResolver) Lookup(ctx context.Context, tx store.Tx, externalID string) (int64, bool, error) {
	m, err := tx.GetMappingByExternalID(ctx, externalID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up mapping of %s: %w", externalID, err)
	}
	if m == nil {
		return 0, false, nil
	}
	return m.InternalID, true, nil
}

// Resolve returns the relational key of externalID. When the id is unknown a
// group row is created from seed and bound to it; created reports that case.
func (r *MappingResolver) Resolve(ctx context.Context, tx store.Tx, externalID string, seed MappingSeed) (int64, bool, error) {
	if externalID == "" {
		return 0, false, fmt.Errorf("%w: empty group id", ErrInvalidDocument)
	}
	id, ok, err := r.Lookup(ctx, tx, externalID)
	if err != nil || ok {
		return id, false, err
	}

	now := r.now()
	group := &models.Group{
		Name:        seed.Name,
		Description: seed.Description,
		OwnerID:     seed.OwnerID,
		CreatedAt:   orNow(seed.CreatedAt, now),
		UpdatedAt:   orNow(seed.UpdatedAt, now),
	}
	if group.Name == "" {
		group.Name = externalID
	}
	if err := tx.CreateGroup(ctx, group); err != nil {
		return 0, false, fmt.Errorf("failed to create group for %s: %w", externalID, err)
	}
	if err := r.bind(ctx, tx, externalID, group, now); err != nil {
		return 0, false, err
	}
	return group.ID, true, nil
}

// Reverse returns the document id bound to internalID.
func (r *MappingResolver) Reverse(ctx context.Context, tx store.Tx, internalID int64) (string, error) {
	m, err := tx.GetMappingByInternalID(ctx, internalID)
	if err != nil {
		return "", fmt.Errorf("failed to look up mapping of group %d: %w", internalID, err)
	}
	if m == nil {
		return "", fmt.Errorf("%w: group %d", ErrMappingNotFound, internalID)
	}
	return m.ExternalID, nil
}

// Assign binds a relationally created group to a new document id. The group
// row is inserted first when it has no key yet.
func (r *MappingResolver) Assign(ctx context.Context, tx store.Tx, group *models.Group) (string, error) {
	now := r.now()
	if group.ID == 0 {
		group.CreatedAt = orNow(group.CreatedAt, now)
		group.UpdatedAt = orNow(group.UpdatedAt, now)
		if err := tx.CreateGroup(ctx, group); err != nil {
			return "", fmt.Errorf("failed to create group: %w", err)
		}
	}
	externalID := uuid.NewString()
	if err := r.bind(ctx, tx, externalID, group, now); err != nil {
		return "", err
	}
	return externalID, nil
}

func (r *MappingResolver) bind(ctx context.Context, tx store.Tx, externalID string, group *models.Group, now time.Time) error {
	err := tx.CreateMapping(ctx, &models.EntityMapping{
		ExternalID:  externalID,
		InternalID:  group.ID,
		EntityType:  groupEntityType,
		DisplayName: group.Name,
		OwnerID:     group.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapping %s -> %d: %w", externalID, group.ID, err)
	}
	return nil
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}
