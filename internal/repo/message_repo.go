// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: append, windowed reads, and the sender-conditional edit and delete.
//
// The message sequence of a conversation is mutable on purpose. Appends take
// the next position from the conversation row, edits rewrite content in
// place, and deletes remove the row. Nothing here is an event log.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-chat/internal/domain"
)

// AppendMessage stores m at the tail of its conversation. The conversation's
// NextSeq counter is bumped with a single UPDATE inside the same transaction,
// so concurrent appends always receive distinct, increasing positions.
// ID and CreatedAt are filled in when empty.
func AppendMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Conversation{}).
			Where("id = ?", m.ConversationID).
			Updates(map[string]any{
				"next_seq":        gorm.Expr("next_seq + 1"),
				"last_message_at": m.CreatedAt,
				"updated_at":      m.CreatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var conv domain.Conversation
		if err := tx.Select("next_seq").Where("id = ?", m.ConversationID).First(&conv).Error; err != nil {
			return err
		}
		m.Seq = conv.NextSeq
		return tx.Omit(clause.Associations).Create(m).Error
	})
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}

// ListMessagesRange returns limit messages starting at rank offset, ordered
// oldest first (Seq ASC).
func ListMessagesRange(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	if limit <= 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LastMessage returns the newest message of a conversation, or ErrNotFound
// when it has none.
func LastMessage(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MessageExists reports whether id is an element of the conversation.
func MessageExists(ctx context.Context, db *gorm.DB, conversationID, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND id = ?", conversationID, id).
		Count(&n).Error
	return n > 0, err
}

// UpdateMessageContentBySender rewrites content and marks the message
// edited, but only when the row exists in the conversation AND was sent by
// senderID. The check and the write are one UPDATE statement, so a concurrent
// delete cannot interleave between them. A miss returns ErrNotFound.
func UpdateMessageContentBySender(ctx context.Context, db *gorm.DB, conversationID, id, senderID, content string) (*domain.Message, error) {
	var out *domain.Message
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Message{}).
			Where("id = ? AND conversation_id = ? AND sender_id = ?", id, conversationID, senderID).
			Updates(map[string]any{
				"content":    content,
				"is_edited":  true,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		m, err := GetMessage(ctx, tx, id)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMessageBySender hard-deletes the message when it exists in the
// conversation and was sent by senderID. A miss returns ErrNotFound.
func DeleteMessageBySender(ctx context.Context, db *gorm.DB, conversationID, id, senderID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND conversation_id = ? AND sender_id = ?", id, conversationID, senderID).
		Delete(&domain.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
