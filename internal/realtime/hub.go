// Package realtime owns the persistent websocket connections. It registers
// each socket with the presence registry, pumps push events out to it, and
// hands client typing signals to the typing relay.
package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-chat/internal/push"
)

// ErrBufferFull is returned by Emit when the connection's queue is full.
var ErrBufferFull = errors.New("send buffer full")

var activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ws_connections_active",
	Help: "Open websocket connections.",
})

func init() {
	prometheus.MustRegister(activeConnections)
}

// Presence is the registry view the hub writes to.
type Presence interface {
	OnConnect(userID, connID string) (previous string)
	OnDisconnect(userID, connID string) bool
	Touch(userID string)
}

// Announcer fans presence changes out to friends.
type Announcer interface {
	FriendOnline(ctx context.Context, userID string, friends []string)
	FriendOffline(ctx context.Context, userID string, friends []string)
}

// Friends lists who should hear about a user's presence.
type Friends interface {
	FriendsOf(ctx context.Context, userID string) ([]string, error)
}

// TypingRelay receives decoded client typing signals.
type TypingRelay interface {
	OnTyping(ctx context.Context, senderID, conversationID string) push.DeliveryResult
	OnStopTyping(ctx context.Context, senderID, conversationID string) push.DeliveryResult
}

// Options tunes connection behavior. Zero values pick defaults.
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
	MaxMessage   int64
	CheckOrigin  func(*http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxMessage <= 0 {
		o.MaxMessage = 4 << 10
	}
	return o
}

// Hub tracks live connections by connection id.
type Hub struct {
	Presence Presence
	Announce Announcer
	Friends  Friends
	Typing   TypingRelay
	Log      zerolog.Logger

	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// NewHub builds a hub. Announce, Friends and Typing may be set afterwards
// to break construction cycles.
func NewHub(p Presence, log zerolog.Logger, opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		Presence: p,
		Log:      log.With().Str("component", "realtime").Logger(),
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		clients: make(map[string]*Client),
	}
}

// ServeWS upgrades the request and starts the connection's pumps for
// userID. It returns once the pumps are running.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan push.Event, h.opts.SendBuffer),
		done:   make(chan struct{}),
	}
	h.register(c)

	h.wg.Add(2)
	go func() { defer h.wg.Done(); c.writePump() }()
	go func() { defer h.wg.Done(); c.readPump() }()
	return nil
}

// Emit queues ev on connID without blocking.
func (h *Hub) Emit(connID string, ev push.Event) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return push.ErrConnectionGone
	}
	select {
	case <-c.done:
		return push.ErrConnectionGone
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and waits for the pumps to exit or ctx
// to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}

	finished := make(chan struct{})
	go func() { h.wg.Wait(); close(finished) }()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	activeConnections.Inc()

	prev := h.Presence.OnConnect(c.UserID, c.ID)
	h.Log.Info().
		Str("user_id", c.UserID).
		Str("conn_id", c.ID).
		Str("replaced_conn_id", prev).
		Msg("ws connected")

	// A reconnect that displaced a live socket is not news to friends.
	if prev == "" {
		h.announce(c.UserID, true)
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()
	if !ok {
		return
	}
	activeConnections.Dec()

	released := h.Presence.OnDisconnect(c.UserID, c.ID)
	h.Log.Info().
		Str("user_id", c.UserID).
		Str("conn_id", c.ID).
		Bool("released", released).
		Msg("ws disconnected")
	if released {
		h.announce(c.UserID, false)
	}
}

func (h *Hub) announce(userID string, online bool) {
	if h.Announce == nil || h.Friends == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	friends, err := h.Friends.FriendsOf(ctx, userID)
	if err != nil {
		h.Log.Warn().Err(err).Str("user_id", userID).Msg("list friends for presence")
		return
	}
	if online {
		h.Announce.FriendOnline(ctx, userID, friends)
	} else {
		h.Announce.FriendOffline(ctx, userID, friends)
	}
}
