// Package services – ConversationService
//
// This file implements ConversationService: listing a user's conversations,
// reading backward-paged message windows, and creating the two-party
// conversation when a friendship is accepted.
//
// Observability: public methods are OpenTelemetry-instrumented with
// conversation/user identifiers and page numbers as span attributes.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-chat/internal/directory"
	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/observability"
	"github.com/tbourn/go-social-chat/internal/repo"
	"github.com/tbourn/go-social-chat/internal/utils"
)

// ConversationService serves conversation reads and creation.
type ConversationService struct {
	DB       *gorm.DB
	Users    directory.Users
	Friends  directory.Friends
	Presence PresenceView

	// PerPage is the window size; values < 1 mean utils.DefaultPerPage.
	PerPage int
}

// Member loads the conversation and checks that userID participates in it.
func (s *ConversationService) Member(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	return loadMember(ctx, s.DB, conversationID, userID)
}

func loadMember(ctx context.Context, db *gorm.DB, conversationID, userID string) (*domain.Conversation, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	c, err := repo.GetConversation(ctx, db, conversationID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// List returns the requester's conversations, most recently active first,
// each with the peer's summary and the newest message if any.
func (s *ConversationService) List(ctx context.Context, requesterID string) (_ []domain.ConversationSummary, err error) {
	ctx, span := observability.Tracer("services/conversations").Start(ctx, "ConversationService.List",
		trace.WithAttributes(observability.UserID.String(requesterID)),
	)
	defer func() {
		observability.Finish(span, err)
		span.End()
	}()

	if requesterID == "" {
		return nil, ErrUnauthenticated
	}
	convs, err := repo.ListConversationsForUser(ctx, s.DB, requesterID)
	if err != nil {
		return nil, err
	}

	sums := newSummaries(s.Users, s.Presence)
	out := make([]domain.ConversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		peer, err := sums.get(ctx, c.PeerOf(requesterID))
		if err != nil {
			return nil, err
		}
		row := domain.ConversationSummary{
			ConversationID: c.ID,
			Peer:           peer,
			IsGroup:        c.IsGroup,
		}
		last, err := repo.LastMessage(ctx, s.DB, c.ID)
		switch {
		case err == nil:
			v, err := sums.view(ctx, last)
			if err != nil {
				return nil, err
			}
			row.LastMessage = &v
		case errors.Is(err, repo.ErrNotFound):
		default:
			return nil, err
		}
		out = append(out, row)
	}
	span.SetAttributes(observability.ConvCount.Int(len(out)))
	return out, nil
}

// FetchWindow returns page `page` (1-based, counted back from the newest
// message) of the conversation. Messages inside the window are newest first,
// so concatenating pages 1..n and reversing yields the whole sequence in
// append order.
func (s *ConversationService) FetchWindow(ctx context.Context, conversationID, requesterID string, page int) (_ *domain.Window, err error) {
	ctx, span := observability.Tracer("services/conversations").Start(ctx, "ConversationService.FetchWindow",
		trace.WithAttributes(
			observability.ConversationID.String(conversationID),
			observability.UserID.String(requesterID),
			observability.Page.Int(page),
		),
	)
	defer func() {
		observability.Finish(span, err)
		span.End()
	}()

	conv, err := loadMember(ctx, s.DB, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	total, err := repo.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, err
	}
	start, length, hasMore := utils.Window(int(total), page, s.PerPage)

	items, err := repo.ListMessagesRange(ctx, s.DB, conversationID, start, length)
	if err != nil {
		return nil, err
	}

	sums := newSummaries(s.Users, s.Presence)
	views := make([]domain.MessageView, len(items))
	for i := range items {
		v, err := sums.view(ctx, &items[i])
		if err != nil {
			return nil, err
		}
		views[len(items)-1-i] = v
	}

	peer, err := sums.get(ctx, conv.PeerOf(requesterID))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.MessageCount.Int(len(views)), observability.HasMore.Bool(hasMore))
	return &domain.Window{Messages: views, HasMore: hasMore, PeerSnapshot: peer}, nil
}

// WindowTag returns a weak ETag for page `page` of the conversation as seen
// by requesterID. Message senders in a window are the two participants, so
// besides the message stats the tag folds in both participants' presence
// status and last-active time.
func (s *ConversationService) WindowTag(ctx context.Context, conversationID, requesterID string, page int) (string, error) {
	conv, err := loadMember(ctx, s.DB, conversationID, requesterID)
	if err != nil {
		return "", err
	}
	count, maxAt, err := repo.MessagesStats(ctx, s.DB, conversationID)
	if err != nil {
		return "", err
	}
	var ts int64
	if maxAt != nil {
		ts = maxAt.UnixNano()
	}
	return fmt.Sprintf(`W/"window:%s:%d:%d:%d:%s:%s"`, conversationID, page, count, ts,
		s.presenceStamp(requesterID), s.presenceStamp(conv.PeerOf(requesterID))), nil
}

func (s *ConversationService) presenceStamp(userID string) string {
	if s.Presence == nil {
		return string(domain.StatusOffline)
	}
	sum := s.Presence.Decorate(domain.UserSummary{ID: userID})
	var at int64
	if sum.LastActive != nil {
		at = sum.LastActive.UnixNano()
	}
	return fmt.Sprintf("%s.%d", sum.Status, at)
}

// EnsureForFriendship returns the conversation between a and b, creating it
// on first call. created reports whether this call inserted it. The pair
// must be distinct, accepted friends.
func (s *ConversationService) EnsureForFriendship(ctx context.Context, a, b string) (conv *domain.Conversation, created bool, err error) {
	ctx, span := observability.Tracer("services/conversations").Start(ctx, "ConversationService.EnsureForFriendship",
		trace.WithAttributes(observability.UserID.String(a), observability.PeerID.String(b)),
	)
	defer func() {
		observability.Finish(span, err)
		span.End()
	}()

	if a == "" || b == "" {
		return nil, false, ErrUnauthenticated
	}
	if a == b {
		return nil, false, ErrSelfConversation
	}
	if s.Friends != nil {
		ok, err := s.Friends.AreFriends(ctx, a, b)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, ErrNotFriends
		}
	}

	if c, err := repo.FindConversationByPair(ctx, s.DB, a, b); err == nil {
		return c, false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	c, err := repo.CreateConversation(ctx, s.DB, a, b)
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost a race with a concurrent accept; the winner's row is the one.
		c, err = repo.FindConversationByPair(ctx, s.DB, a, b)
		if err != nil {
			return nil, false, fmt.Errorf("reload conversation: %w", err)
		}
		return c, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(observability.ConversationID.String(c.ID))
	return c, true, nil
}
