package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a generic object payload used for entity snapshots that travel between
// the stores. It is stored as JSON text by the relational store.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// User is a user profile. The key is the identity provider uid, which is also
// the document id in the users collection.
type User struct {
	ID          string    `gorm:"primaryKey;size:128" json:"id"`
	Email       string    `gorm:"index" json:"email"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for users
func (User) TableName() string {
	return "users"
}

// Group is a study group. Its integer key is allocated by this table and bound
// to the document id through [EntityMapping].
type Group struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `gorm:"size:128;index" json:"owner_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for groups
func (Group) TableName() string {
	return "groups"
}

// MembershipRole is the role a user holds within a group.
type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleAdmin  MembershipRole = "admin"
	RoleMember MembershipRole = "member"
)

// GroupMembership links a user to a group. The key is the membership document id.
type GroupMembership struct {
	ID        string         `gorm:"primaryKey;size:256" json:"id"`
	GroupID   int64          `gorm:"not null;uniqueIndex:idx_membership_group_user" json:"group_id"`
	UserID    string         `gorm:"size:128;not null;uniqueIndex:idx_membership_group_user;index" json:"user_id"`
	Role      MembershipRole `gorm:"size:32;not null;default:member" json:"role"`
	JoinedAt  time.Time      `json:"joined_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for group memberships
func (GroupMembership) TableName() string {
	return "group_memberships"
}

// File is the metadata of an uploaded file. The binary lives in object storage.
type File struct {
	ID          string    `gorm:"primaryKey;size:128" json:"id"`
	GroupID     int64     `gorm:"not null;index" json:"group_id"`
	UploaderID  string    `gorm:"size:128" json:"uploader_id"`
	Name        string    `gorm:"not null" json:"name"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for files
func (File) TableName() string {
	return "files"
}

// Tag is a label scoped to a group.
type Tag struct {
	ID        string    `gorm:"primaryKey;size:128" json:"id"`
	GroupID   int64     `gorm:"not null;index" json:"group_id"`
	Name      string    `gorm:"not null" json:"name"`
	Color     string    `gorm:"size:16" json:"color"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for tags
func (Tag) TableName() string {
	return "tags"
}
