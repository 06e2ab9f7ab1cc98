package handlers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-chat/internal/repo"
)

// DBLedger stores idempotent sends in the idempotency table. Its Lookup
// method plugs into middleware.IdempotentSend.
type DBLedger struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup returns the message recorded for (user, conversation, key), or ""
// when there is no live record.
func (l DBLedger) Lookup(ctx context.Context, userID, conversationID, key string, now time.Time) (string, error) {
	rec, err := repo.GetIdempotency(ctx, l.DB, userID, conversationID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.MessageID, nil
}

// Record stores messageID under the key. A concurrent send with the same key
// that recorded first wins; that is not an error.
func (l DBLedger) Record(ctx context.Context, userID, conversationID, key, messageID string, status int) error {
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, l.DB, userID, conversationID, key, messageID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
