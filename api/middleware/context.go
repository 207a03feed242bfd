package middleware

import (
	"context"

	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	"github.com/google/uuid"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// Principal is the authenticated caller as established by Auth.
type Principal struct {
	UserID   uuid.UUID
	Role     enums.Role
	AccessID string
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.Role {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Role
	}
	return ""
}
