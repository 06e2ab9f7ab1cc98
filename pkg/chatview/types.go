// Package chatview is the client-side state of one open conversation: the
// newest-first message list, optimistic echoes of pending sends, the page
// cursor, the peer's typing flag and the local typing broadcast.
//
// A Model is driven from two directions. User actions (Mount, LoadMore,
// Send, Edit, Delete, Keystroke) call out to a Backend; server pushes are
// fed in through the Apply methods. All methods are safe for concurrent use.
package chatview

import (
	"context"
	"errors"
	"time"
)

// State is the coarse activity of a Model.
type State int

const (
	Idle State = iota
	Loading
	Sending
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Sending:
		return "sending"
	default:
		return "idle"
	}
}

// Person is the public summary of a participant.
type Person struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Status      string     `json:"status,omitempty"`
	LastActive  *time.Time `json:"lastActive,omitempty"`
}

// Message is one entry of the list. Confirmed messages decode straight from
// the server's JSON; IsTemp and IsOwn are local bookkeeping.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversationId"`
	ClientID          string    `json:"clientId,omitempty"`
	Sender            Person    `json:"sender"`
	Content           *string   `json:"content"`
	ImageURL          *string   `json:"image"`
	Timestamp         time.Time `json:"timestamp"`
	IsEdited          bool      `json:"isEdited"`
	ForwardedFromUser *Person   `json:"forwardedFromUser,omitempty"`
	ForwardedFromPost *string   `json:"forwardedFromPost,omitempty"`
	ReplyTo           *string   `json:"replyTo,omitempty"`

	IsTemp bool `json:"-"`
	IsOwn  bool `json:"-"`
}

// Page is one window of the conversation, newest message first.
type Page struct {
	Messages     []Message `json:"messages"`
	HasMore      bool      `json:"hasMore"`
	PeerSnapshot Person    `json:"peerSnapshot"`
}

// Draft is what the user submits. ClientID is filled in by Send when empty.
type Draft struct {
	ClientID          string
	Content           *string
	ImagePath         string
	ForwardedFromUser *string
	ForwardedFromPost *string
	ReplyTo           *string
}

// Backend performs the network side of user actions.
type Backend interface {
	FetchWindow(ctx context.Context, conversationID string, page int) (*Page, error)
	Send(ctx context.Context, conversationID string, d Draft) (*Message, error)
	Edit(ctx context.Context, conversationID, messageID, content string) (*Message, error)
	Delete(ctx context.Context, conversationID, messageID string) error
	Typing(ctx context.Context, conversationID string, active bool) error
}

var (
	// ErrEmptyDraft is returned by Send when the draft has neither text nor image.
	ErrEmptyDraft = errors.New("chatview: message needs content or an image")
	// ErrSuperseded is returned by a fetch whose result was discarded because
	// a newer fetch started or the model was closed.
	ErrSuperseded = errors.New("chatview: fetch superseded")
	// ErrClosed is returned by actions on a closed model.
	ErrClosed = errors.New("chatview: model closed")
)
