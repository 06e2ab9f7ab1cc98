package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-chat/internal/presence"
	"github.com/tbourn/go-social-chat/internal/push"
)

type announcement struct {
	user   string
	online bool
}

type fakeAnnouncer struct {
	mu  sync.Mutex
	got []announcement
}

func (a *fakeAnnouncer) FriendOnline(_ context.Context, u string, _ []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, announcement{u, true})
}

func (a *fakeAnnouncer) FriendOffline(_ context.Context, u string, _ []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, announcement{u, false})
}

func (a *fakeAnnouncer) list() []announcement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]announcement(nil), a.got...)
}

type staticFriends []string

func (f staticFriends) FriendsOf(context.Context, string) ([]string, error) { return f, nil }

type typingCall struct {
	sender, conv string
	active       bool
}

type fakeTyping struct {
	calls chan typingCall
}

func (f *fakeTyping) OnTyping(_ context.Context, s, c string) push.DeliveryResult {
	f.calls <- typingCall{s, c, true}
	return push.Delivered
}

func (f *fakeTyping) OnStopTyping(_ context.Context, s, c string) push.DeliveryResult {
	f.calls <- typingCall{s, c, false}
	return push.Delivered
}

type harness struct {
	hub      *Hub
	reg      *presence.Registry
	announce *fakeAnnouncer
	typing   *fakeTyping
	srv      *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := presence.NewRegistry()
	h := NewHub(reg, zerolog.Nop(), Options{PingInterval: time.Second, SendBuffer: 2})
	ann := &fakeAnnouncer{}
	typ := &fakeTyping{calls: make(chan typingCall, 8)}
	h.Announce = ann
	h.Friends = staticFriends{"friend"}
	h.Typing = typ

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.ServeWS(w, r, r.URL.Query().Get("as")); err != nil {
			t.Logf("upgrade: %v", err)
		}
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
		srv.Close()
	})
	return &harness{hub: h, reg: reg, announce: ann, typing: typ, srv: srv}
}

func (hs *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.srv.URL, "http") + "/?as=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHub_ConnectEmitDisconnect(t *testing.T) {
	hs := newHarness(t)
	conn := hs.dial(t, "alice")

	waitFor(t, "registration", func() bool { return hs.reg.Resolve("alice") != "" })
	connID := hs.reg.Resolve("alice")

	if err := hs.hub.Emit(connID, push.Event{Type: push.TypeNewMessage, Data: map[string]string{"k": "v"}}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != push.TypeNewMessage || got.Data["k"] != "v" {
		t.Fatalf("received %+v", got)
	}

	_ = conn.Close()
	waitFor(t, "disconnect", func() bool { return hs.reg.Resolve("alice") == "" && hs.hub.Count() == 0 })

	if err := hs.hub.Emit(connID, push.Event{Type: "x"}); err != push.ErrConnectionGone {
		t.Fatalf("Emit after close = %v", err)
	}
	waitFor(t, "offline announcement", func() bool { return len(hs.announce.list()) == 2 })
	if a := hs.announce.list(); a[0] != (announcement{"alice", true}) || a[1] != (announcement{"alice", false}) {
		t.Fatalf("announcements %+v", a)
	}
}

func TestHub_StaleDisconnectKeepsNewerSession(t *testing.T) {
	hs := newHarness(t)
	first := hs.dial(t, "bob")
	waitFor(t, "first registration", func() bool { return hs.reg.Resolve("bob") != "" })
	firstID := hs.reg.Resolve("bob")

	second := hs.dial(t, "bob")
	defer second.Close()
	waitFor(t, "second registration", func() bool {
		id := hs.reg.Resolve("bob")
		return id != "" && id != firstID
	})
	secondID := hs.reg.Resolve("bob")

	_ = first.Close()
	waitFor(t, "first socket gone", func() bool { return hs.hub.Count() == 1 })

	if got := hs.reg.Resolve("bob"); got != secondID {
		t.Fatalf("newer session lost routing: %q", got)
	}
	for _, a := range hs.announce.list() {
		if !a.online {
			t.Fatalf("stale disconnect announced offline: %+v", hs.announce.list())
		}
	}
	if n := len(hs.announce.list()); n != 1 {
		t.Fatalf("want a single online announcement, got %d", n)
	}
}

func TestHub_TypingSignals(t *testing.T) {
	hs := newHarness(t)
	conn := hs.dial(t, "carol")
	defer conn.Close()

	send := func(typ, payload string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"`+typ+`","data":`+payload+`}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	send(SignalTyping, `{"conversationId":"c1","userId":"carol"}`)
	send(SignalTyping, `{"conversationId":"c1","userId":"mallory"}`)
	send("dance", `{}`)
	send(SignalTyping, `{"userId":"carol"}`)
	send(SignalStopTyping, `{"conversationId":"c1"}`)

	want := []typingCall{{"carol", "c1", true}, {"carol", "c1", false}}
	for i, w := range want {
		select {
		case got := <-hs.typing.calls:
			if got != w {
				t.Fatalf("call %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for call %d", i)
		}
	}
	select {
	case extra := <-hs.typing.calls:
		t.Fatalf("unexpected relay: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_EmitUnknownAndFullBuffer(t *testing.T) {
	hs := newHarness(t)
	if err := hs.hub.Emit("nope", push.Event{}); err != push.ErrConnectionGone {
		t.Fatalf("unknown conn: %v", err)
	}

	// A client that never reads cannot block the emitter.
	c := &Client{ID: "slow", UserID: "slow", hub: hs.hub, send: make(chan push.Event, 1), done: make(chan struct{})}
	hs.hub.mu.Lock()
	hs.hub.clients[c.ID] = c
	hs.hub.mu.Unlock()
	defer func() {
		hs.hub.mu.Lock()
		delete(hs.hub.clients, c.ID)
		hs.hub.mu.Unlock()
	}()

	if err := hs.hub.Emit("slow", push.Event{Type: "a"}); err != nil {
		t.Fatalf("first emit: %v", err)
	}
	if err := hs.hub.Emit("slow", push.Event{Type: "b"}); err != ErrBufferFull {
		t.Fatalf("second emit = %v, want ErrBufferFull", err)
	}
}
