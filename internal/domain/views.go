package domain

import "time"

// PresenceStatus is the online/offline flag carried in user summaries.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// UserSummary is the minimal public profile attached to push events and
// conversation listings.
type UserSummary struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	AvatarURL   string         `json:"avatarUrl,omitempty"`
	Status      PresenceStatus `json:"status,omitempty"`
	LastActive  *time.Time     `json:"lastActive,omitempty"`
}

// MessageView is the display-ready shape of a persisted message: sender and
// forwarded-user references are resolved to summaries.
type MessageView struct {
	ID                string       `json:"id"`
	ConversationID    string       `json:"conversationId"`
	ClientID          string       `json:"clientId,omitempty"`
	Sender            UserSummary  `json:"sender"`
	Content           *string      `json:"content"`
	ImageURL          *string      `json:"image"`
	Timestamp         time.Time    `json:"timestamp"`
	IsEdited          bool         `json:"isEdited"`
	ForwardedFromUser *UserSummary `json:"forwardedFromUser,omitempty"`
	ForwardedFromPost *string      `json:"forwardedFromPost,omitempty"`
	ReplyTo           *string      `json:"replyTo,omitempty"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ConversationID string       `json:"conversationId"`
	Peer           UserSummary  `json:"peer"`
	LastMessage    *MessageView `json:"lastMessage,omitempty"`
	IsGroup        bool         `json:"isGroup"`
}

// Window is one page of a conversation, newest message first.
type Window struct {
	Messages     []MessageView `json:"messages"`
	HasMore      bool          `json:"hasMore"`
	PeerSnapshot UserSummary   `json:"peerSnapshot"`
}
