package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/libraryhub-backend/api/responses"
	pkgAuth "github.com/angelmondragon/libraryhub-backend/pkg/auth"
	"github.com/angelmondragon/libraryhub-backend/pkg/auth/session"
	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/libraryhub-backend/pkg/errors"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/google/uuid"
)

// RoleResolver reports the stored role of a user and whether the account
// still exists.
type RoleResolver interface {
	CurrentRole(ctx context.Context, userID uuid.UUID) (enums.Role, bool, error)
}

// Auth validates a bearer token, confirms its session is still live and seeds
// the request context with the caller. When roles is set the caller's role is
// read from storage on every request, so demotions and deletions apply before
// the token expires.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, roles RoleResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := pkgAuth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				live, err := verifier.HasSession(r.Context(), claims.ID, claims.UserID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !live {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired or revoked"))
					return
				}
			}

			role := claims.Role
			if roles != nil {
				current, found, err := roles.CurrentRole(r.Context(), claims.UserID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve user"))
					return
				}
				if !found {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account no longer exists"))
					return
				}
				role = current
			}

			ctx := WithPrincipal(r.Context(), Principal{
				UserID:   claims.UserID,
				Role:     role,
				AccessID: claims.ID,
			})
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, role.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
