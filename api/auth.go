package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qiaoqiao/match3-server/game/service"
)

// TokenCookie is read when no Authorization header is present
const TokenCookie = "match3_token"

var errInvalidToken = errors.New("invalid token")

type contextKey string

var ownerCtxKey = contextKey("owner")

// Authenticator verifies optional HS256 bearer tokens. A request without a token
// plays as a guest; a request with a bad token is rejected.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns nil when secret is empty, which disables token checks
func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret)}
}

// Middleware stores the token owner in the request context
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerOrCookie(r)
		if a == nil || tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}
		owner, err := a.Verify(tokenStr)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ownerCtxKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses a token and returns the account in its sub (or user_id) claim
func (a *Authenticator) Verify(tokenStr string) (service.Owner, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !token.Valid {
		return service.Guest(), errInvalidToken
	}

	raw, _ := claims["sub"].(string)
	if raw == "" {
		switch v := claims["user_id"].(type) {
		case string:
			raw = v
		case float64:
			raw = strconv.FormatInt(int64(v), 10)
		}
	}

	owner := service.ParseOwner(raw)
	if owner.IsGuest() {
		return owner, fmt.Errorf("%w: no account in claims", errInvalidToken)
	}
	return owner, nil
}

// Sign issues a token for an account. Used by tooling and tests.
func (a *Authenticator) Sign(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	})
	return token.SignedString(a.secret)
}

// tokenOwner returns the verified owner, if the request carried a token
func tokenOwner(r *http.Request) (service.Owner, bool) {
	owner, ok := r.Context().Value(ownerCtxKey).(service.Owner)
	return owner, ok
}

// requestOwner prefers the token, then an explicit user id, then guest
func requestOwner(r *http.Request, userID string) service.Owner {
	if owner, ok := tokenOwner(r); ok {
		return owner
	}
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	return service.ParseOwner(userID)
}

func bearerOrCookie(r *http.Request) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}
