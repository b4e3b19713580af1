package auth

import (
	"context"
	"net/http"
	"strings"

	"leviosa/internal/logging"
)

// SessionCookie is read when no Authorization header is present.
const SessionCookie = "leviosa_session"

type claimsKey struct{}

// Verifier resolves the caller's session from a request.
type Verifier interface {
	Verify(r *http.Request) (*Claims, error)
}

// JWTVerifier verifies HS256 session tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// TokenFromRequest extracts the bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(r *http.Request) (*Claims, error) {
	tok := TokenFromRequest(r)
	if tok == "" {
		return nil, ErrInvalidToken
	}
	return ValidateToken(v.secret, tok)
}

// Middleware attaches verified claims to the request context. Requests
// without a valid session pass through untouched; handlers decide whether
// to reject them.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.Verify(r)
			if err != nil {
				if TokenFromRequest(r) != "" {
					logging.AuthDebug("rejected session token: %v", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetClaims returns the session claims in ctx, or nil.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}
