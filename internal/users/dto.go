package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/angelmondragon/libraryhub-backend/pkg/db/models"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	MatricNo          string     `json:"matric_no"`
	Department        string     `json:"department"`
	Role              enums.Role `json:"role"`
	ProfilePictureURL *string    `json:"profile_picture_url"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type UserPageDTO struct {
	Users      []UserDTO `json:"users"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Name         string
	MatricNo     string
	Department   string
	Role         enums.Role
	PasswordHash string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:                u.ID,
		Name:              u.Name,
		MatricNo:          u.MatricNo,
		Department:        u.Department,
		Role:              u.Role,
		ProfilePictureURL: u.ProfilePictureURL,
		LastLoginAt:       u.LastLoginAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func fromModels(rows []models.User) []UserDTO {
	return lo.Map(rows, func(u models.User, _ int) UserDTO {
		return *FromModel(&u)
	})
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.RoleStudent
	}
	return &models.User{
		Name:         c.Name,
		MatricNo:     c.MatricNo,
		Department:   c.Department,
		Role:         role,
		PasswordHash: c.PasswordHash,
	}
}
