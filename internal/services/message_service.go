// Package services – MessageService
//
// This file implements MessageService, which owns the lifecycle of messages
// inside a conversation: send (with optional image, forward references and
// reply target), in-place edit, and hard delete. Every successful mutation
// notifies the other participant through the push Notifier, off the request
// path and without reporting delivery failures back to the caller.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation, user and message identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-chat/internal/assets"
	"github.com/tbourn/go-social-chat/internal/directory"
	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/observability"
	"github.com/tbourn/go-social-chat/internal/push"
	"github.com/tbourn/go-social-chat/internal/repo"
)

// Notifier is the subset of push.Dispatcher the service calls.
type Notifier interface {
	NewMessage(ctx context.Context, actor domain.UserSummary, to string, msg domain.MessageView) push.DeliveryResult
	MessageEdited(ctx context.Context, actor domain.UserSummary, to string, msg domain.MessageView) push.DeliveryResult
	MessageDeleted(ctx context.Context, actor domain.UserSummary, to, conversationID, messageID string) push.DeliveryResult
}

// SendInput carries the optional parts of a new message. Blank strings are
// treated as absent.
type SendInput struct {
	ClientID          string
	Content           *string
	ImagePath         string
	ForwardedFromUser *string
	ForwardedFromPost *string
	ReplyTo           *string
}

// MessageService coordinates message persistence and peer notification.
type MessageService struct {
	DB       *gorm.DB
	Users    directory.Users
	Posts    directory.Posts
	Presence PresenceView
	Uploader assets.Uploader
	Notifier Notifier

	// MaxContentRunes caps content length; 0 disables the check.
	MaxContentRunes int

	// Async runs notifications. Nil means a new goroutine per call.
	Async func(func())
}

// Send validates and appends a message from requesterID, then notifies the
// peer. The returned view carries resolved sender and forward summaries.
func (s *MessageService) Send(ctx context.Context, requesterID, conversationID string, in SendInput) (_ *domain.MessageView, err error) {
	ctx, span := observability.Tracer("services/messages").Start(ctx, "MessageService.Send",
		trace.WithAttributes(
			observability.ConversationID.String(conversationID),
			observability.UserID.String(requesterID),
			observability.HasImage.Bool(in.ImagePath != ""),
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

	content := normalizeContent(in.Content)
	if content == nil && strings.TrimSpace(in.ImagePath) == "" {
		return nil, ErrEmptyMessage
	}
	if content != nil && s.tooLong(*content) {
		return nil, ErrTooLong
	}

	fwdUser := blankToNil(in.ForwardedFromUser)
	if fwdUser != nil {
		if err := s.requireUser(ctx, *fwdUser); err != nil {
			return nil, err
		}
	}
	fwdPost := blankToNil(in.ForwardedFromPost)
	if fwdPost != nil {
		if err := s.requirePost(ctx, *fwdPost); err != nil {
			return nil, err
		}
	}
	replyTo := blankToNil(in.ReplyTo)
	if replyTo != nil {
		ok, err := repo.MessageExists(ctx, s.DB, conversationID, *replyTo)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrReplyTargetMissing
		}
	}

	var imageURL *string
	if in.ImagePath != "" {
		url, err := s.upload(ctx, in.ImagePath)
		if err != nil {
			return nil, err
		}
		imageURL = &url
	}

	m := &domain.Message{
		ConversationID:    conversationID,
		SenderID:          requesterID,
		ClientID:          strings.TrimSpace(in.ClientID),
		Content:           content,
		ImageURL:          imageURL,
		ForwardedFromUser: fwdUser,
		ForwardedFromPost: fwdPost,
		ReplyTo:           replyTo,
	}
	if err := repo.AppendMessage(ctx, s.DB, m); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	span.SetAttributes(observability.MessageID.String(m.ID), observability.PeerID.String(conv.PeerOf(requesterID)))

	v, err := newSummaries(s.Users, s.Presence).view(ctx, m)
	if err != nil {
		return nil, err
	}

	peer := conv.PeerOf(requesterID)
	s.notify(ctx, func(nctx context.Context) {
		s.Notifier.NewMessage(nctx, v.Sender, peer, v)
	})
	return &v, nil
}

// Get returns one message of a conversation the requester belongs to.
func (s *MessageService) Get(ctx context.Context, requesterID, conversationID, messageID string) (*domain.MessageView, error) {
	if _, err := loadMember(ctx, s.DB, conversationID, requesterID); err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && m.ConversationID != conversationID) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	v, err := newSummaries(s.Users, s.Presence).view(ctx, m)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Edit rewrites the content of requesterID's own message and marks it
// edited, even when the content is unchanged. Ownership is enforced in the
// UPDATE itself.
func (s *MessageService) Edit(ctx context.Context, requesterID, conversationID, messageID, newContent string) (_ *domain.MessageView, err error) {
	ctx, span := observability.Tracer("services/messages").Start(ctx, "MessageService.Edit",
		trace.WithAttributes(
			observability.ConversationID.String(conversationID),
			observability.UserID.String(requesterID),
			observability.MessageID.String(messageID),
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
	content := normalizeContent(&newContent)
	if content == nil {
		return nil, ErrEmptyMessage
	}
	if s.tooLong(*content) {
		return nil, ErrTooLong
	}

	m, err := repo.UpdateMessageContentBySender(ctx, s.DB, conversationID, messageID, requesterID, *content)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, s.explainMiss(ctx, conversationID, messageID)
	}
	if err != nil {
		return nil, err
	}

	v, err := newSummaries(s.Users, s.Presence).view(ctx, m)
	if err != nil {
		return nil, err
	}
	peer := conv.PeerOf(requesterID)
	s.notify(ctx, func(nctx context.Context) {
		s.Notifier.MessageEdited(nctx, v.Sender, peer, v)
	})
	return &v, nil
}

// Delete removes requesterID's own message from the conversation.
func (s *MessageService) Delete(ctx context.Context, requesterID, conversationID, messageID string) (err error) {
	ctx, span := observability.Tracer("services/messages").Start(ctx, "MessageService.Delete",
		trace.WithAttributes(
			observability.ConversationID.String(conversationID),
			observability.UserID.String(requesterID),
			observability.MessageID.String(messageID),
		),
	)
	defer func() {
		observability.Finish(span, err)
		span.End()
	}()

	conv, err := loadMember(ctx, s.DB, conversationID, requesterID)
	if err != nil {
		return err
	}
	err = repo.DeleteMessageBySender(ctx, s.DB, conversationID, messageID, requesterID)
	if errors.Is(err, repo.ErrNotFound) {
		return s.explainMiss(ctx, conversationID, messageID)
	}
	if err != nil {
		return err
	}

	actor, err := newSummaries(s.Users, s.Presence).get(ctx, requesterID)
	if err != nil {
		return err
	}
	peer := conv.PeerOf(requesterID)
	s.notify(ctx, func(nctx context.Context) {
		s.Notifier.MessageDeleted(nctx, actor, peer, conversationID, messageID)
	})
	return nil
}

// explainMiss tells apart "no such message" from "not yours" after a
// conditional write touched no row.
func (s *MessageService) explainMiss(ctx context.Context, conversationID, messageID string) error {
	ok, err := repo.MessageExists(ctx, s.DB, conversationID, messageID)
	if err != nil {
		return err
	}
	if ok {
		return ErrNotSender
	}
	return ErrMessageNotFound
}

func (s *MessageService) upload(ctx context.Context, path string) (string, error) {
	if s.Uploader == nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, assets.ErrNotConfigured)
	}
	url, err := s.Uploader.Upload(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return url, nil
}

func (s *MessageService) requireUser(ctx context.Context, id string) error {
	if s.Users == nil {
		return ErrForwardUserMissing
	}
	ok, err := s.Users.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForwardUserMissing
	}
	return nil
}

func (s *MessageService) requirePost(ctx context.Context, id string) error {
	if s.Posts == nil {
		return ErrForwardPostMissing
	}
	ok, err := s.Posts.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForwardPostMissing
	}
	return nil
}

func (s *MessageService) tooLong(content string) bool {
	return s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes
}

// notify runs fn detached from the request's cancellation.
func (s *MessageService) notify(ctx context.Context, fn func(context.Context)) {
	if s.Notifier == nil {
		return
	}
	nctx := context.WithoutCancel(ctx)
	run := s.Async
	if run == nil {
		run = func(f func()) { go f() }
	}
	run(func() { fn(nctx) })
}

// normalizeContent trims and NFC-normalizes content; blank becomes nil.
func normalizeContent(p *string) *string {
	if p == nil {
		return nil
	}
	c := norm.NFC.String(strings.TrimSpace(*p))
	if c == "" {
		return nil
	}
	return &c
}

func blankToNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
