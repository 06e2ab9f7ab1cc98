package services

import (
	"context"
	"errors"

	"github.com/tbourn/go-social-chat/internal/directory"
	"github.com/tbourn/go-social-chat/internal/domain"
)

// PresenceView decorates a summary with live status. *presence.Registry
// satisfies it.
type PresenceView interface {
	Decorate(domain.UserSummary) domain.UserSummary
}

// summaries resolves and memoizes user summaries for one request.
type summaries struct {
	users    directory.Users
	presence PresenceView
	cache    map[string]domain.UserSummary
}

func newSummaries(users directory.Users, p PresenceView) *summaries {
	return &summaries{users: users, presence: p, cache: map[string]domain.UserSummary{}}
}

// get returns the summary of id decorated with live presence.
func (s *summaries) get(ctx context.Context, id string) (domain.UserSummary, error) {
	sum, err := s.profile(ctx, id)
	if err != nil {
		return domain.UserSummary{}, err
	}
	if s.presence != nil {
		sum = s.presence.Decorate(sum)
	}
	return sum, nil
}

// profile returns the stored summary of id without presence. Unknown users
// degrade to a bare summary named after their id so a deleted profile never
// hides a message.
func (s *summaries) profile(ctx context.Context, id string) (domain.UserSummary, error) {
	if sum, ok := s.cache[id]; ok {
		return sum, nil
	}
	sum := domain.UserSummary{ID: id, DisplayName: id}
	if s.users != nil {
		got, err := s.users.Summary(ctx, id)
		switch {
		case err == nil:
			sum = got
		case errors.Is(err, directory.ErrUnknownUser):
		default:
			return domain.UserSummary{}, err
		}
	}
	s.cache[id] = sum
	return sum, nil
}

// view converts a stored message to its display-ready shape.
func (s *summaries) view(ctx context.Context, m *domain.Message) (domain.MessageView, error) {
	sender, err := s.get(ctx, m.SenderID)
	if err != nil {
		return domain.MessageView{}, err
	}
	v := domain.MessageView{
		ID:                m.ID,
		ConversationID:    m.ConversationID,
		ClientID:          m.ClientID,
		Sender:            sender,
		Content:           m.Content,
		ImageURL:          m.ImageURL,
		Timestamp:         m.CreatedAt,
		IsEdited:          m.IsEdited,
		ForwardedFromPost: m.ForwardedFromPost,
		ReplyTo:           m.ReplyTo,
	}
	// Forwarded users are a reference to a profile, not a live contact.
	if m.ForwardedFromUser != nil && *m.ForwardedFromUser != "" {
		fu, err := s.profile(ctx, *m.ForwardedFromUser)
		if err != nil {
			return domain.MessageView{}, err
		}
		v.ForwardedFromUser = &fu
	}
	return v, nil
}
