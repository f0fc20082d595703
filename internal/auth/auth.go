// Package auth verifies HS256 bearer tokens whose subject is the caller's
// open id and loads the matching user into the request context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PortNumber53/liftx/internal/models"
	"github.com/PortNumber53/liftx/internal/users"
)

type Claims struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"picture,omitempty"`
	LoginMethod string `json:"login_method,omitempty"`
	jwt.RegisteredClaims
}

var ErrMissingToken = errors.New("missing bearer token")

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Parse(tokenStr string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("JWT_SECRET is not configured")
	}
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(c.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return c, nil
}

// Mint signs a token for openID. Used by the CLI and tests.
func (v *Verifier) Mint(openID string, c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.Subject = openID
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

// BearerToken extracts the token from the Authorization header. Websocket
// clients cannot set headers, so the access_token query parameter is accepted too.
func BearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		if tok := strings.TrimSpace(h[7:]); tok != "" {
			return tok, nil
		}
	}
	if tok := strings.TrimSpace(r.URL.Query().Get("access_token")); tok != "" {
		return tok, nil
	}
	return "", ErrMissingToken
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*models.User)
	return u, ok && u != nil
}

// UserUpserter is the users.Store method the middleware needs.
type UserUpserter interface {
	UpsertByOpenID(ctx context.Context, id users.Identity) (*models.User, error)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Middleware authenticates the request, creating the user on first sign-in.
func Middleware(v *Verifier, store UserUpserter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := BearerToken(r)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := v.Parse(tok)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			u, err := store.UpsertByOpenID(r.Context(), users.Identity{
				OpenID:      claims.Subject,
				Name:        optional(claims.Name),
				Email:       optional(claims.Email),
				AvatarURL:   optional(claims.AvatarURL),
				LoginMethod: optional(claims.LoginMethod),
			})
			if err != nil {
				http.Error(w, "failed to load user", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}
