// Package auth verifies the bearer tokens issued by the StudyMed backend.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studymed-quiz-service/internal/domain"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the verified caller.
type Identity struct {
	UserID string
	Role   string
	Token  string // raw bearer token, forwarded to the backend
}

// IsGuest reports whether the caller was not authenticated.
func (i Identity) IsGuest() bool { return i.UserID == domain.GuestUserID }

// IsAdmin reports whether the caller may manage quizzes.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Guest is the identity of every caller when verification is disabled.
var Guest = Identity{UserID: domain.GuestUserID, Role: RoleUser}

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens. An empty secret disables verification.
type Verifier struct {
	hmac []byte
	now  func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{hmac: []byte(secret), now: time.Now}
}

// Enabled reports whether tokens are verified.
func (v *Verifier) Enabled() bool { return len(v.hmac) > 0 }

// IssueToken signs a token for sub. Used by tests and the token command.
func (v *Verifier) IssueToken(sub, role string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errors.New("no signing secret configured")
	}
	now := v.now()
	claims := &Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(v.hmac)
}

// Parse validates tokenStr and returns its claims.
func (v *Verifier) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthenticated
	}
	if claims.Sub == "" {
		claims.Sub = claims.Subject
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	if claims.Role == "" {
		claims.Role = RoleUser
	}
	return claims, nil
}

// Authenticate resolves the caller of r from the Authorization header or,
// for websocket upgrades, the token query parameter.
func (v *Verifier) Authenticate(r *http.Request) (Identity, error) {
	if !v.Enabled() {
		return Guest, nil
	}
	raw := bearer(r)
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}
	claims, err := v.Parse(raw)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.Sub, Role: claims.Role, Token: raw}, nil
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects unauthenticated requests and stores the Identity in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := v.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"msg": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
