package postgres

import (
	"context"
	"errors"

	"github.com/surrealdb/surrealsync/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// first loads one row by primary key and maps a missing row to (nil, nil).
func first[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// upsert inserts row or overwrites every column of the existing row with the same key.
func upsert(ctx context.Context, db *gorm.DB, row any) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

// User operations
func (q *queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	return first[models.User](ctx, q.db, "id = ?", id)
}

func (q *queries) SaveUser(ctx context.Context, user *models.User) error {
	return upsert(ctx, q.db, user)
}

func (q *queries) DeleteUser(ctx context.Context, id string) error {
	db := q.db.WithContext(ctx)
	if err := db.Where("user_id = ?", id).Delete(&models.GroupMembership{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.User{}).Error
}

// Group operations
func (q *queries) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	return first[models.Group](ctx, q.db, "id = ?", id)
}

func (q *queries) CreateGroup(ctx context.Context, group *models.Group) error {
	return q.db.WithContext(ctx).Create(group).Error
}

func (q *queries) SaveGroup(ctx context.Context, group *models.Group) error {
	return upsert(ctx, q.db, group)
}

func (q *queries) DeleteGroup(ctx context.Context, id int64) error {
	db := q.db.WithContext(ctx)
	for _, dependent := range []any{&models.File{}, &models.Tag{}, &models.GroupMembership{}} {
		if err := db.Where("group_id = ?", id).Delete(dependent).Error; err != nil {
			return err
		}
	}
	if err := db.Where("id = ?", id).Delete(&models.Group{}).Error; err != nil {
		return err
	}
	return db.Where("internal_id = ?", id).Delete(&models.EntityMapping{}).Error
}

// Membership operations
func (q *queries) GetMembership(ctx context.Context, id string) (*models.GroupMembership, error) {
	return first[models.GroupMembership](ctx, q.db, "id = ?", id)
}

func (q *queries) SaveMembership(ctx context.Context, membership *models.GroupMembership) error {
	return upsert(ctx, q.db, membership)
}

func (q *queries) DeleteMembership(ctx context.Context, id string) error {
	return q.db.WithContext(ctx).Where("id = ?", id).Delete(&models.GroupMembership{}).Error
}

// File operations
func (q *queries) GetFile(ctx context.Context, id string) (*models.File, error) {
	return first[models.File](ctx, q.db, "id = ?", id)
}

func (q *queries) SaveFile(ctx context.Context, file *models.File) error {
	return upsert(ctx, q.db, file)
}

func (q *queries) DeleteFile(ctx context.Context, id string) error {
	return q.db.WithContext(ctx).Where("id = ?", id).Delete(&models.File{}).Error
}

// Tag operations
func (q *queries) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	return first[models.Tag](ctx, q.db, "id = ?", id)
}

func (q *queries) SaveTag(ctx context.Context, tag *models.Tag) error {
	return upsert(ctx, q.db, tag)
}

func (q *queries) DeleteTag(ctx context.Context, id string) error {
	return q.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Tag{}).Error
}
