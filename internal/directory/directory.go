// Package directory adapts the profile, friend-graph and feed subsystems to
// the narrow lookups the chat layer needs. Store reads the minimal tables
// the service keeps locally; other deployments can satisfy the interfaces
// with remote clients.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-chat/internal/domain"
)

// ErrUnknownUser is returned by Summary for ids with no profile row.
var ErrUnknownUser = errors.New("unknown user")

// Users resolves profile data.
type Users interface {
	Summary(ctx context.Context, userID string) (domain.UserSummary, error)
	Exists(ctx context.Context, userID string) (bool, error)
}

// Posts verifies feed references.
type Posts interface {
	Exists(ctx context.Context, postID string) (bool, error)
}

// Friends answers friend-graph questions.
type Friends interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
	FriendsOf(ctx context.Context, userID string) ([]string, error)
}

// Store implements Users and Friends over GORM. Its Posts view is returned
// by PostIndex because both Users and Posts declare Exists.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store bound to db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

var nowUTC = func() time.Time { return time.Now().UTC() }

// Summary returns the public profile of userID. A blank display name falls
// back to the id in title case.
func (s *Store) Summary(ctx context.Context, userID string) (domain.UserSummary, error) {
	var u domain.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UserSummary{}, ErrUnknownUser
	}
	if err != nil {
		return domain.UserSummary{}, err
	}
	name := strings.TrimSpace(u.DisplayName)
	if name == "" {
		name = cases.Title(language.Und).String(u.ID)
	}
	return domain.UserSummary{ID: u.ID, DisplayName: name, AvatarURL: u.AvatarURL}, nil
}

// Exists reports whether a profile row exists for userID.
func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	return exists(ctx, s.DB, &domain.User{}, userID)
}

// AreFriends reports whether an accepted edge a→b exists.
func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("user_id = ? AND friend_id = ?", a, b).
		Count(&n).Error
	return n > 0, err
}

// FriendsOf lists the accepted friends of userID.
func (s *Store) FriendsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("user_id = ?", userID).
		Order("friend_id ASC").
		Pluck("friend_id", &ids).Error
	return ids, err
}

// AddFriendship stores the edge in both directions. Re-adding is a no-op.
func (s *Store) AddFriendship(ctx context.Context, a, b string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range [][2]string{{a, b}, {b, a}} {
			f := domain.Friendship{UserID: e[0], FriendID: e[1]}
			if err := tx.Where(&f).Attrs(domain.Friendship{AcceptedAt: nowUTC()}).FirstOrCreate(&f).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PostIndex returns the Posts view of the store.
func (s *Store) PostIndex() Posts { return postIndex{db: s.DB} }

type postIndex struct{ db *gorm.DB }

func (p postIndex) Exists(ctx context.Context, postID string) (bool, error) {
	return exists(ctx, p.db, &domain.Post{}, postID)
}

func exists(ctx context.Context, db *gorm.DB, model any, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}
