// Package typing relays ephemeral "is typing" signals between the two
// participants of a conversation. Nothing is persisted and nothing is
// throttled here; clients debounce their own signals.
package typing

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/push"
)

// Conversations resolves a conversation the sender belongs to.
// services.ConversationService satisfies it via Member.
type Conversations interface {
	Member(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
}

// Pusher emits the typing event. push.Dispatcher satisfies it.
type Pusher interface {
	Typing(ctx context.Context, sender, receiver, conversationID string, active bool) push.DeliveryResult
}

// Relay forwards typing signals to the other participant.
type Relay struct {
	Conversations Conversations
	Push          Pusher
	Log           zerolog.Logger
}

// OnTyping relays a typing-started signal.
func (r *Relay) OnTyping(ctx context.Context, senderID, conversationID string) push.DeliveryResult {
	return r.relay(ctx, senderID, conversationID, true)
}

// OnStopTyping relays a typing-stopped signal.
func (r *Relay) OnStopTyping(ctx context.Context, senderID, conversationID string) push.DeliveryResult {
	return r.relay(ctx, senderID, conversationID, false)
}

func (r *Relay) relay(ctx context.Context, senderID, conversationID string, active bool) push.DeliveryResult {
	conv, err := r.Conversations.Member(ctx, conversationID, senderID)
	if err != nil {
		r.Log.Debug().Err(err).
			Str("user_id", senderID).
			Str("conversation_id", conversationID).
			Msg("typing signal dropped")
		return push.DispatchFailed
	}
	return r.Push.Typing(ctx, senderID, conv.PeerOf(senderID), conversationID, active)
}
