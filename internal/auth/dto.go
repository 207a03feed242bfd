package auth

import "github.com/angelmondragon/libraryhub-backend/internal/users"

// RegisterRequest is the self-service sign-up payload. AdminCode is only read
// when Role asks for an admin account.
type RegisterRequest struct {
	Name       string  `json:"name" validate:"required"`
	MatricNo   string  `json:"matric_no" validate:"required"`
	Department string  `json:"department" validate:"required"`
	Password   string  `json:"password" validate:"required"`
	Role       string  `json:"role,omitempty"`
	AdminCode  *string `json:"admin_code,omitempty"`
}

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	MatricNo string `json:"matric_no" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CreateAdminRequest is used by operator tooling to bootstrap an admin
// without the admin code.
type CreateAdminRequest struct {
	Name       string
	MatricNo   string
	Department string
	Password   string
}

// TokenResponse is returned by both register and login.
type TokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"`
	User        *users.UserDTO `json:"user"`
}
