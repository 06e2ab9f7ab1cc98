// Package auth resolves the caller identity from an HS256 bearer token.
// Every API route and the websocket upgrade go through Require, so a
// missing and an invalid credential fail the same way.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-social-chat/internal/sysutil"
)

// ContextKey is where Require stores the user id in the gin context. The
// rate limiter and idempotency middleware read the same key.
const ContextKey = "userID"

// ErrInvalidToken covers every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Verifier checks and mints tokens whose subject is the user id.
type Verifier struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
}

// NewVerifier returns a Verifier for secret and issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{Secret: []byte(secret), Issuer: issuer, Leeway: 30 * time.Second}
}

// Verify returns the subject of a valid token.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" || len(v.Secret) == 0 {
		return "", ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// Issue mints a token for userID valid for ttl.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}

// Require rejects requests without a valid token with 401 and stores the
// user id under ContextKey otherwise. The token comes from the
// Authorization header or, for browser websocket upgrades, the token query
// parameter.
func Require(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sysutil.FirstNonEmpty(bearer(c.GetHeader("Authorization")), c.Query("token"))
		uid, err := v.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "missing or invalid credentials",
			})
			return
		}
		c.Set(ContextKey, uid)
		c.Next()
	}
}

// UserID returns the id stored by Require, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearer(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
