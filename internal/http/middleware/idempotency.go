package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey carries the client's retry key on message sends.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotencyReplayed is set to "true" on responses served from a
	// previously recorded send.
	HeaderIdempotencyReplayed = "Idempotency-Replayed"

	ctxKeyIdemKey  = "idem.key"
	ctxKeyReplayOf = "idem.replayOf"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions bounds accepted keys.
type IdempotencyOptions struct {
	// MaxLen defaults to 200.
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the id of the message a live record maps
// (user, conversation, key) to, or "" when there is none. Expiry is the
// lookup's concern.
type IdempotencyLookup func(ctx context.Context, userID, conversationID, key string, now time.Time) (messageID string, err error)

// IdempotentSend validates the Idempotency-Key header on POST requests and,
// when lookup finds a recorded result for the authenticated user and the
// :id conversation, marks the request as a replay of that message. It must
// run after authentication and before the rate limiter, which lets replays
// through for free. Other methods and requests without the header pass
// untouched.
// Lookup failures are logged and the request proceeds as a fresh send.
func IdempotentSend(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := asString(c.Value("userID"))
		if lookup != nil && uid != "" {
			msgID, err := lookup(c.Request.Context(), uid, c.Param("id"), key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			case msgID != "":
				c.Set(ctxKeyReplayOf, msgID)
			}
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := asString(c.Value(ctxKeyIdemKey))
	return s, s != ""
}

// ReplayOf returns the message id a replayed send should answer with.
func ReplayOf(c *gin.Context) (string, bool) {
	s := asString(c.Value(ctxKeyReplayOf))
	return s, s != ""
}

// IsReplay reports whether IdempotentSend matched a recorded send.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayOf(c)
	return ok
}
