package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/go-social-chat/internal/push"
)

// Client signal types.
const (
	SignalTyping     = "typing"
	SignalStopTyping = "stopTyping"
)

// Signal is a client-to-server frame.
type Signal struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TypingSignal is the payload of typing and stopTyping.
type TypingSignal struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	ID     string
	UserID string

	hub       *Hub
	conn      *websocket.Conn
	send      chan push.Event
	done      chan struct{}
	closeOnce sync.Once
}

// close stops both pumps; writePump owns closing the socket.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump decodes client signals until the socket fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	pongWait := c.hub.opts.PingInterval * 2
	c.conn.SetReadLimit(c.hub.opts.MaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var sig Signal
		if err := c.conn.ReadJSON(&sig); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.Log.Debug().Err(err).Str("conn_id", c.ID).Msg("ws read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.Presence.Touch(c.UserID)
		c.handle(sig)
	}
}

func (c *Client) handle(sig Signal) {
	if sig.Type != SignalTyping && sig.Type != SignalStopTyping {
		c.hub.Log.Debug().Str("conn_id", c.ID).Str("type", sig.Type).Msg("unknown signal")
		return
	}
	var ts TypingSignal
	if err := json.Unmarshal(sig.Data, &ts); err != nil || ts.ConversationID == "" {
		c.hub.Log.Debug().Str("conn_id", c.ID).Msg("malformed typing signal")
		return
	}
	// The socket's authenticated user is the sender, whatever the payload says.
	if ts.UserID != "" && ts.UserID != c.UserID {
		c.hub.Log.Warn().
			Str("user_id", c.UserID).
			Str("claimed_user_id", ts.UserID).
			Msg("typing signal for another user ignored")
		return
	}
	if c.hub.Typing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.hub.opts.WriteTimeout)
	defer cancel()
	if sig.Type == SignalTyping {
		c.hub.Typing.OnTyping(ctx, c.UserID, ts.ConversationID)
	} else {
		c.hub.Typing.OnStopTyping(ctx, c.UserID, ts.ConversationID)
	}
}

// writePump drains the send queue and keeps the socket alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.hub.Log.Debug().Err(err).Str("conn_id", c.ID).Msg("ws write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
