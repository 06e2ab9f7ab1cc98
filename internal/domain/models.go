// Package domain defines the persistence models for conversations, messages,
// and the minimal user/friend/post records the chat layer reads. These types
// are mapped with GORM and form the core data layer of the chat service.
package domain

import (
	"time"
)

// Conversation is a two-party container for an ordered message sequence.
// It is created exactly once, when a friend request between two users with
// no existing conversation is accepted, and is never deleted.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserA / UserB: the two participants, stored in lexical order so the
//     unique pair index rejects a second conversation for the same friends.
//   - IsGroup: preserved extension point; no code path sets it to true.
//   - NextSeq: last allocated message position; bumped atomically on append.
//   - LastMessageAt: time of the newest append, used to order listings.
type Conversation struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	UserA         string     `json:"user_a"          gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:1;index"`
	UserB         string     `json:"user_b"          gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:2;index"`
	IsGroup       bool       `json:"is_group"        gorm:"not null;default:false"`
	NextSeq       int64      `json:"-"               gorm:"not null;default:0"`
	LastMessageAt *time.Time `json:"last_message_at" gorm:"index"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.UserA == userID || c.UserB == userID)
}

// PeerOf returns the other participant, or "" when userID is not a member.
func (c *Conversation) PeerOf(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

// Message is one element of a conversation's message sequence. The sequence
// is intentionally mutable: edits rewrite Content in place and deletes remove
// the row outright, with no tombstone left behind.
//
// Seq orders messages inside a conversation. Deletes leave gaps in Seq, so
// windows are computed over rank (OFFSET) rather than over Seq values.
type Message struct {
	ID                string    `json:"id"                gorm:"type:char(36);primaryKey"`
	ConversationID    string    `json:"conversation_id"   gorm:"type:char(36);not null;uniqueIndex:ux_conversation_seq,priority:1"`
	Seq               int64     `json:"-"                 gorm:"not null;uniqueIndex:ux_conversation_seq,priority:2"`
	SenderID          string    `json:"sender_id"         gorm:"type:varchar(64);not null;index"`
	ClientID          string    `json:"client_id"         gorm:"type:varchar(64);index"`
	Content           *string   `json:"content"           gorm:"type:text"`
	ImageURL          *string   `json:"image_url"         gorm:"type:text"`
	ForwardedFromUser *string   `json:"forwarded_from_user" gorm:"type:varchar(64)"`
	ForwardedFromPost *string   `json:"forwarded_from_post" gorm:"type:varchar(64)"`
	ReplyTo           *string   `json:"reply_to"          gorm:"type:char(36)"`
	IsEdited          bool      `json:"is_edited"         gorm:"not null;default:false"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// Conversation is the owning aggregate. Messages go with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// User is the slice of the profile subsystem the chat layer reads.
type User struct {
	ID          string    `json:"id"           gorm:"type:varchar(64);primaryKey"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255);not null"`
	AvatarURL   string    `json:"avatar_url"   gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Friendship is one accepted edge of the friend graph. Edges are stored in
// both directions so lookups never need an OR.
type Friendship struct {
	UserID     string    `gorm:"type:varchar(64);primaryKey"`
	FriendID   string    `gorm:"type:varchar(64);primaryKey;index"`
	AcceptedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// Post is the slice of the feed subsystem needed to verify forwarded posts.
type Post struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	AuthorID  string    `gorm:"type:varchar(64);not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }
