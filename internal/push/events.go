// Package push delivers server-to-client events to a user's live
// connection. Delivery is best-effort: an offline peer or a failed emit is
// logged and counted, never retried and never reported to the caller that
// triggered the event.
package push

import (
	"time"

	"github.com/tbourn/go-social-chat/internal/domain"
)

// Event type names as seen on the wire.
const (
	TypeNewMessage     = "newMessage"
	TypeMessageEdited  = "messageEdited"
	TypeMessageDeleted = "messageDeleted"
	TypeOnTyping       = "onTyping"
	TypeOnStopTyping   = "onStopTyping"
	TypeFriendOnline   = "friendOnline"
	TypeFriendOffline  = "friendOffline"
)

// Event is the envelope written to a connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewMessagePayload announces a freshly appended message.
type NewMessagePayload struct {
	FromUserID     string             `json:"fromUserId"`
	ActorSummary   domain.UserSummary `json:"actorSummary"`
	Message        domain.MessageView `json:"message"`
	ConversationID string             `json:"conversationId"`
}

// MessageEditedPayload announces an in-place content change.
type MessageEditedPayload struct {
	FromUserID     string             `json:"fromUserId"`
	ActorSummary   domain.UserSummary `json:"actorSummary"`
	MessageID      string             `json:"messageId"`
	NewContent     string             `json:"newContent"`
	ConversationID string             `json:"conversationId"`
	Timestamp      time.Time          `json:"timestamp"`
}

// MessageDeletedPayload announces a removal.
type MessageDeletedPayload struct {
	FromUserID     string             `json:"fromUserId"`
	ActorSummary   domain.UserSummary `json:"actorSummary"`
	MessageID      string             `json:"messageId"`
	ConversationID string             `json:"conversationId"`
	Timestamp      time.Time          `json:"timestamp"`
}

// TypingPayload is shared by onTyping and onStopTyping.
type TypingPayload struct {
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	ConversationID string `json:"conversationId"`
}

// PresencePayload is shared by friendOnline and friendOffline.
type PresencePayload struct {
	UserID string                `json:"userId"`
	Status domain.PresenceStatus `json:"status"`
}
