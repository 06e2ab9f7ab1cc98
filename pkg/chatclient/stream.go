package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/go-social-chat/pkg/chatview"
)

// Push event types as sent by the server.
const (
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventOnTyping       = "onTyping"
	EventOnStopTyping   = "onStopTyping"
	EventFriendOnline   = "friendOnline"
	EventFriendOffline  = "friendOffline"
)

// Event is one decoded push. Exactly one payload field is set, matching Type;
// unknown types carry only Raw.
type Event struct {
	Type string
	Raw  json.RawMessage

	NewMessage *NewMessage
	Edited     *MessageEdited
	Deleted    *MessageDeleted
	Typing     *Typing
	Presence   *Presence
}

// NewMessage is the payload of newMessage.
type NewMessage struct {
	FromUserID     string           `json:"fromUserId"`
	ActorSummary   chatview.Person  `json:"actorSummary"`
	Message        chatview.Message `json:"message"`
	ConversationID string           `json:"conversationId"`
}

// MessageEdited is the payload of messageEdited.
type MessageEdited struct {
	FromUserID     string          `json:"fromUserId"`
	ActorSummary   chatview.Person `json:"actorSummary"`
	MessageID      string          `json:"messageId"`
	NewContent     string          `json:"newContent"`
	ConversationID string          `json:"conversationId"`
	Timestamp      time.Time       `json:"timestamp"`
}

// MessageDeleted is the payload of messageDeleted.
type MessageDeleted struct {
	FromUserID     string          `json:"fromUserId"`
	ActorSummary   chatview.Person `json:"actorSummary"`
	MessageID      string          `json:"messageId"`
	ConversationID string          `json:"conversationId"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Typing is the payload of onTyping and onStopTyping.
type Typing struct {
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	ConversationID string `json:"conversationId"`
}

// Presence is the payload of friendOnline and friendOffline.
type Presence struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeEvent(env envelope) (Event, error) {
	ev := Event{Type: env.Type, Raw: env.Data}
	var target any
	switch env.Type {
	case EventNewMessage:
		ev.NewMessage = &NewMessage{}
		target = ev.NewMessage
	case EventMessageEdited:
		ev.Edited = &MessageEdited{}
		target = ev.Edited
	case EventMessageDeleted:
		ev.Deleted = &MessageDeleted{}
		target = ev.Deleted
	case EventOnTyping, EventOnStopTyping:
		ev.Typing = &Typing{}
		target = ev.Typing
	case EventFriendOnline, EventFriendOffline:
		ev.Presence = &Presence{}
		target = ev.Presence
	default:
		return ev, nil
	}
	return ev, json.Unmarshal(env.Data, target)
}

// Stream is a live websocket subscription.
type Stream struct {
	conn   *websocket.Conn
	events chan Event
	client *Client

	writeMu sync.Mutex

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials the realtime endpoint and starts decoding pushes. The
// stream becomes the one Typing writes to.
func (c *Client) Connect(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.BaseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	hdr := http.Header{}
	if c.Token != "" {
		hdr.Set("Authorization", "Bearer "+c.Token)
	}
	conn, resp, err := c.Dialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, err
	}

	s := &Stream{
		conn:   conn,
		events: make(chan Event, 64),
		client: c,
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()

	go s.readLoop()
	return s, nil
}

// Events yields decoded pushes until the stream ends; Err then tells why.
func (s *Stream) Events() <-chan Event { return s.events }

// Err returns the error that ended the stream, nil after a clean Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()

		c := s.client
		c.mu.Lock()
		if c.stream == s {
			c.stream = nil
		}
		c.mu.Unlock()
	})
	return err
}

// Typing writes a typing (active) or stopTyping signal.
func (s *Stream) Typing(ctx context.Context, conversationID string, active bool) error {
	typ := "stopTyping"
	if active {
		typ = "typing"
	}
	frame := map[string]any{
		"type": typ,
		"data": map[string]string{"conversationId": conversationID},
	}
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteJSON(frame)
}

func (s *Stream) readLoop() {
	defer close(s.events)
	for {
		var env envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.setErr(err)
				}
				_ = s.Close()
			}
			return
		}
		ev, err := decodeEvent(env)
		if err != nil {
			s.client.Log.Debug().Err(err).Str("type", env.Type).Msg("undecodable push dropped")
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Drive feeds every push into the models it concerns until the stream ends.
// Presence pushes go to all of them.
func (s *Stream) Drive(models ...*chatview.Model) {
	for ev := range s.events {
		for _, m := range models {
			Apply(m, ev)
		}
	}
}

// Apply hands one push to a view model. Events for other conversations are
// ignored by the model itself.
func Apply(m *chatview.Model, ev Event) {
	switch {
	case ev.NewMessage != nil:
		msg := ev.NewMessage.Message
		if msg.ConversationID == "" {
			msg.ConversationID = ev.NewMessage.ConversationID
		}
		m.ApplyNewMessage(msg)
	case ev.Edited != nil:
		m.ApplyEdited(ev.Edited.ConversationID, ev.Edited.MessageID, ev.Edited.NewContent)
	case ev.Deleted != nil:
		m.ApplyDeleted(ev.Deleted.ConversationID, ev.Deleted.MessageID)
	case ev.Typing != nil:
		m.ApplyTyping(ev.Typing.ConversationID, ev.Typing.SenderID, ev.Type == EventOnTyping)
	case ev.Presence != nil:
		status := ev.Presence.Status
		if status == "" {
			status = strings.TrimPrefix(strings.ToLower(ev.Type), "friend")
		}
		m.ApplyPresence(ev.Presence.UserID, status)
	}
}

var _ chatview.Backend = (*Client)(nil)

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
