package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"

	"shortly/pkg/logging"
)

// OAuthMiddleware verifies bearer tokens against an external OIDC provider
// and puts the authenticated owner ID on the request context. Identity is
// entirely the provider's business; the service only trusts the subject.
type OAuthMiddleware struct {
	verifier *oidc.IDTokenVerifier
	logger   *logging.Logger
}

type OAuthConfig struct {
	IssuerURL string
	Audience  string
}

type authClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Scope string `json:"scope"`
}

type contextKey string

const (
	ownerIDKey contextKey = "owner_id"
	emailKey   contextKey = "email"
)

func NewOAuthMiddleware(config OAuthConfig, logger *logging.Logger) (*OAuthMiddleware, error) {
	provider, err := oidc.NewProvider(context.Background(), config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("creating OIDC provider: %w", err)
	}

	return &OAuthMiddleware{
		verifier: provider.Verifier(&oidc.Config{ClientID: config.Audience}),
		logger:   logger,
	}, nil
}

// Authenticate rejects requests without a valid bearer token carrying the
// required scopes.
func (m *OAuthMiddleware) Authenticate(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing or malformed authorization header", http.StatusUnauthorized)
				return
			}

			idToken, err := m.verifier.Verify(r.Context(), token)
			if err != nil {
				m.logger.Warn(r.Context(), "token verification failed", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			var claims authClaims
			if err := idToken.Claims(&claims); err != nil {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			if !hasScopes(claims.Scope, requiredScopes) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}

			ownerID, err := uuid.Parse(claims.Sub)
			if err != nil {
				http.Error(w, "invalid subject", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasScopes(tokenScopes string, required []string) bool {
	have := make(map[string]bool)
	for _, s := range strings.Fields(tokenScopes) {
		have[s] = true
	}
	for _, s := range required {
		if !have[s] {
			return false
		}
	}
	return true
}

// OwnerID returns the authenticated owner from the context, or uuid.Nil.
func OwnerID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ownerIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithOwnerID is used by tests and by deployments that terminate auth at a
// trusted gateway.
func WithOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}
