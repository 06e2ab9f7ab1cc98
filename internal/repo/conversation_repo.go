// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: membership rules live in the service layer.
//
// Error semantics:
//   - When a conversation is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - A second conversation for the same pair returns ErrDuplicate.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// orderedPair returns the two ids in lexical order, matching how
// conversations store their participants.
func orderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// CreateConversation inserts a two-party conversation between a and b.
// If the pair already has one, ErrDuplicate is returned.
func CreateConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	ua, ub := orderedPair(a, b)
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		UserA:     ua,
		UserB:     ub,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// FindConversationByPair returns the conversation between a and b, in
// either order, or ErrNotFound.
func FindConversationByPair(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	ua, ub := orderedPair(a, b)
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", ua, ub).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a conversation by id.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsForUser returns every conversation userID takes part in,
// most recently active first. Conversations without messages sort by their
// creation time.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC, id ASC").
		Find(&out).Error
	return out, err
}
