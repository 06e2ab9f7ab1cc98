package push

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-chat/internal/domain"
)

// DeliveryResult is the internal outcome of one emit attempt.
type DeliveryResult int

const (
	Delivered DeliveryResult = iota
	PeerOffline
	DispatchFailed
)

func (r DeliveryResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case PeerOffline:
		return "peer_offline"
	default:
		return "dispatch_failed"
	}
}

// ErrConnectionGone is returned by an Emitter when connID no longer maps to
// an open socket.
var ErrConnectionGone = errors.New("connection gone")

// Resolver maps a user to their live connection id ("" when offline).
type Resolver interface {
	Resolve(userID string) string
}

// Emitter writes an event to one connection without blocking.
type Emitter interface {
	Emit(connID string, ev Event) error
}

var deliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "push_deliveries_total",
		Help: "Push emit attempts by event type and outcome.",
	},
	[]string{"event", "result"},
)

func init() {
	prometheus.MustRegister(deliveries)
}

// Dispatcher resolves a recipient's connection and emits one event to it.
type Dispatcher struct {
	Presence Resolver
	Out      Emitter
	Log      zerolog.Logger
	Now      func() time.Time
}

// NewDispatcher wires a dispatcher with a UTC clock.
func NewDispatcher(p Resolver, out Emitter, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Presence: p,
		Out:      out,
		Log:      log.With().Str("component", "push").Logger(),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewMessage tells `to` about a message appended by actor.
func (d *Dispatcher) NewMessage(ctx context.Context, actor domain.UserSummary, to string, msg domain.MessageView) DeliveryResult {
	return d.send(ctx, to, Event{Type: TypeNewMessage, Data: NewMessagePayload{
		FromUserID:     actor.ID,
		ActorSummary:   actor,
		Message:        msg,
		ConversationID: msg.ConversationID,
	}})
}

// MessageEdited tells `to` that actor rewrote a message.
func (d *Dispatcher) MessageEdited(ctx context.Context, actor domain.UserSummary, to string, msg domain.MessageView) DeliveryResult {
	content := ""
	if msg.Content != nil {
		content = *msg.Content
	}
	return d.send(ctx, to, Event{Type: TypeMessageEdited, Data: MessageEditedPayload{
		FromUserID:     actor.ID,
		ActorSummary:   actor,
		MessageID:      msg.ID,
		NewContent:     content,
		ConversationID: msg.ConversationID,
		Timestamp:      d.now(),
	}})
}

// MessageDeleted tells `to` that actor removed a message.
func (d *Dispatcher) MessageDeleted(ctx context.Context, actor domain.UserSummary, to, conversationID, messageID string) DeliveryResult {
	return d.send(ctx, to, Event{Type: TypeMessageDeleted, Data: MessageDeletedPayload{
		FromUserID:     actor.ID,
		ActorSummary:   actor,
		MessageID:      messageID,
		ConversationID: conversationID,
		Timestamp:      d.now(),
	}})
}

// Typing relays a started (active=true) or stopped typing signal.
func (d *Dispatcher) Typing(ctx context.Context, sender, receiver, conversationID string, active bool) DeliveryResult {
	typ := TypeOnStopTyping
	if active {
		typ = TypeOnTyping
	}
	return d.send(ctx, receiver, Event{Type: typ, Data: TypingPayload{
		SenderID:       sender,
		ReceiverID:     receiver,
		ConversationID: conversationID,
	}})
}

// FriendOnline tells each friend that userID came online.
func (d *Dispatcher) FriendOnline(ctx context.Context, userID string, friends []string) {
	d.presence(ctx, TypeFriendOnline, userID, domain.StatusOnline, friends)
}

// FriendOffline tells each friend that userID went offline.
func (d *Dispatcher) FriendOffline(ctx context.Context, userID string, friends []string) {
	d.presence(ctx, TypeFriendOffline, userID, domain.StatusOffline, friends)
}

func (d *Dispatcher) presence(ctx context.Context, typ, userID string, st domain.PresenceStatus, friends []string) {
	ev := Event{Type: typ, Data: PresencePayload{UserID: userID, Status: st}}
	for _, f := range friends {
		d.send(ctx, f, ev)
	}
}

func (d *Dispatcher) send(ctx context.Context, to string, ev Event) DeliveryResult {
	res := d.deliver(ctx, to, ev)
	deliveries.WithLabelValues(ev.Type, res.String()).Inc()
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, to string, ev Event) DeliveryResult {
	if err := ctx.Err(); err != nil {
		d.Log.Warn().Err(err).Str("event", ev.Type).Str("user_id", to).Msg("push skipped")
		return DispatchFailed
	}
	conn := d.Presence.Resolve(to)
	if conn == "" {
		d.Log.Debug().Str("event", ev.Type).Str("user_id", to).Msg("peer offline")
		return PeerOffline
	}
	if err := d.Out.Emit(conn, ev); err != nil {
		d.Log.Warn().Err(err).
			Str("event", ev.Type).
			Str("user_id", to).
			Str("conn_id", conn).
			Msg("push dropped")
		return DispatchFailed
	}
	return Delivered
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}
