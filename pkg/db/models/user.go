package models

import (
	"time"

	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a library account identified by its matriculation number.
type User struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name              string     `gorm:"column:name;not null"`
	MatricNo          string     `gorm:"column:matric_no;not null;uniqueIndex:users_matric_no_key"`
	Department        string     `gorm:"column:department;not null"`
	Role              enums.Role `gorm:"column:role;type:text;not null;default:'student'"`
	PasswordHash      string     `gorm:"column:password_hash;not null"`
	ProfilePictureURL *string    `gorm:"column:profile_picture_url"`
	ProfilePictureKey *string    `gorm:"column:profile_picture_key"`
	LastLoginAt       *time.Time `gorm:"column:last_login_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
