// Package services defines the business logic for conversations and
// messages. This file centralizes service-level error values so they can be
// returned consistently by service methods and classified by callers.
//
// Translation into HTTP status codes happens at the handler layer through
// KindOf; services never know about transport.
package services

import (
	"errors"

	"github.com/tbourn/go-social-chat/internal/repo"
)

// Identity and membership errors.
var (
	// ErrUnauthenticated is returned when an operation is attempted without a
	// resolved caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConversationNotFound indicates the conversation id does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrNotParticipant is returned when the caller is not one of the two
	// participants of the conversation.
	ErrNotParticipant = errors.New("not a participant of this conversation")

	// ErrMessageNotFound indicates the message is not part of the conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotSender is returned when editing or deleting someone else's message.
	ErrNotSender = errors.New("only the sender can change this message")
)

// Validation errors.
var (
	// ErrEmptyMessage is returned when a send carries neither content nor image.
	ErrEmptyMessage = errors.New("message must have content or an image")

	// ErrTooLong is returned when content exceeds the configured rune limit.
	ErrTooLong = errors.New("message too long")

	// ErrForwardUserMissing is returned when forwardedFromUser does not exist.
	ErrForwardUserMissing = errors.New("forwarded user does not exist")

	// ErrForwardPostMissing is returned when forwardedFromPost does not exist.
	ErrForwardPostMissing = errors.New("forwarded post does not exist")

	// ErrReplyTargetMissing is returned when replyTo is not a message of the
	// same conversation.
	ErrReplyTargetMissing = errors.New("reply target does not exist in this conversation")

	// ErrNotFriends is returned when a conversation is requested for two
	// users without an accepted friendship.
	ErrNotFriends = errors.New("users are not friends")

	// ErrSelfConversation is returned when both participants are the same user.
	ErrSelfConversation = errors.New("cannot open a conversation with yourself")
)

// ErrUpstreamUnavailable wraps a failed call to an external collaborator,
// currently the asset service.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Kind groups errors by how a boundary should report them.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindValidation
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream_unavailable"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unrecognized errors, including nil, are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthorized
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotSender):
		return KindForbidden
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrTooLong),
		errors.Is(err, ErrForwardUserMissing),
		errors.Is(err, ErrForwardPostMissing),
		errors.Is(err, ErrReplyTargetMissing),
		errors.Is(err, ErrNotFriends),
		errors.Is(err, ErrSelfConversation):
		return KindValidation
	case errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound),
		errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstream
	}
	return KindInternal
}
