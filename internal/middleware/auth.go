package middleware

import (
	"context"
	"net/http"
	"strings"

	"erp-backend/internal/apperr"
	"erp-backend/internal/auth"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/pkg/utils"
)

type contextKey string

const (
	ActorKey  contextKey = "actor"
	ClaimsKey contextKey = "claims"
)

// RevocationChecker reports whether an access token id was logged out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	userRepo   *repositories.UserRepository
	revoked    RevocationChecker
}

func NewAuthMiddleware(jwtManager *auth.JWTManager, userRepo *repositories.UserRepository, revoked RevocationChecker) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		userRepo:   userRepo,
		revoked:    revoked,
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", apperr.Unauthorized("Authorization header required")
	}
	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", apperr.Unauthorized("Invalid authorization format")
	}
	return parts[1], nil
}

// verify validates an access token and loads the current user so role and
// status changes apply immediately rather than at token expiry.
func (m *AuthMiddleware) verify(ctx context.Context, token string) (*auth.Claims, models.Actor, error) {
	claims, err := m.jwtManager.ValidateToken(token, auth.TokenTypeAccess)
	if err != nil {
		return nil, models.Actor{}, apperr.Unauthorized("Invalid or expired token")
	}

	if m.revoked != nil && claims.ID != "" {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, models.Actor{}, err
		}
		if revoked {
			return nil, models.Actor{}, apperr.Unauthorized("Token has been revoked")
		}
	}

	user, err := m.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, models.Actor{}, apperr.Unauthorized("User not found")
		}
		return nil, models.Actor{}, err
	}
	if !user.IsActive() {
		return nil, models.Actor{}, apperr.Forbidden("Account suspended. Please contact administrator.")
	}
	return claims, models.Actor{ID: user.ID, Role: user.Role}, nil
}

func withIdentity(r *http.Request, claims *auth.Claims, actor models.Actor) *http.Request {
	ctx := context.WithValue(r.Context(), ActorKey, actor)
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return r.WithContext(ctx)
}

// Authenticate is a middleware that validates the bearer access token.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		claims, actor, err := m.verify(r.Context(), token)
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, withIdentity(r, claims, actor))
	})
}

// AuthenticateQuery accepts the access token from the token query parameter.
// Browsers cannot set headers on websocket upgrades.
func (m *AuthMiddleware) AuthenticateQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			var err error
			if token, err = bearerToken(r); err != nil {
				utils.WriteError(w, apperr.Unauthorized("Authentication token required"))
				return
			}
		}
		claims, actor, err := m.verify(r.Context(), token)
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, withIdentity(r, claims, actor))
	})
}

// ActorFromContext returns the authenticated caller.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(models.Actor)
	return actor, ok
}

// ClaimsFromContext returns the verified token claims.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

// RequireRole is a middleware that ensures the user has one of the allowed roles.
// It must run after Authenticate.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				utils.WriteError(w, apperr.Unauthorized("Authentication required"))
				return
			}
			for _, role := range allowedRoles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.WriteError(w, apperr.Forbidden("Insufficient permissions"))
		})
	}
}

// RequireAdmin is a middleware that ensures the user has admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin)(next)
}

// RequireStaff admits admins and managers.
func RequireStaff(next http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin, models.RoleManager)(next)
}
