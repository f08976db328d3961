package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sessionly-app/sessionly/libs/httpx"
)

// Actor is the verified caller identity handed to handlers.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type actorCtxKey struct{}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok
}

func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// Verifier checks bearer tokens. RS256 via JWKS when the token carries a kid
// and a JWKS client is configured, HS256 with the shared secret otherwise.
type Verifier struct {
	secret string
	jwks   *JWKSClient
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: secret, jwks: jwks}
}

func (v *Verifier) verify(token string) (*Claims, error) {
	if v.jwks != nil {
		header, err := ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := v.jwks.Get(header.Kid)
			if err != nil {
				return nil, ErrInvalidToken
			}
			return VerifyRS256(token, pub)
		}
	}
	return ParseAndVerifyHS256(token, v.secret)
}

// Require verifies the Authorization header and stores the actor in the
// request context. 401 on any failure.
func (v *Verifier) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(raw, "Bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "missing or invalid Authorization header")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		if token == "" {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "missing or invalid Authorization header")
			return
		}

		claims, err := v.verify(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid token")
			return
		}

		ctx := ContextWithActor(r.Context(), Actor{ID: claims.Sub, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps a handler that only the given roles may reach. Must run
// inside Require.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "insufficient role")
	})
}
