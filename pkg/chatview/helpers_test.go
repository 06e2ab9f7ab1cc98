package chatview

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type typingCall struct {
	conversationID string
	active         bool
}

// fakeBackend answers from canned pages. A fetch for a page listed in block
// waits for that channel (or ctx) before answering.
type fakeBackend struct {
	mu       sync.Mutex
	pages    map[int]*Page
	fetchErr error
	block    map[int]chan struct{}
	started  chan int
	sendErr  error
	onSend   func(d Draft)
	nextID   int
	sent     []Draft
	typing   []typingCall
	edited   map[string]string
	deleted  []string
	now      time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages:  map[int]*Page{},
		block:  map[int]chan struct{}{},
		edited: map[string]string{},
		now:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBackend) FetchWindow(ctx context.Context, _ string, page int) (*Page, error) {
	f.mu.Lock()
	ch := f.block[page]
	p, err := f.pages[page], f.fetchErr
	f.mu.Unlock()
	if ch != nil {
		if f.started != nil {
			f.started <- page
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &Page{}, nil
	}
	cp := *p
	cp.Messages = append([]Message(nil), p.Messages...)
	return &cp, nil
}

func (f *fakeBackend) Send(_ context.Context, conversationID string, d Draft) (*Message, error) {
	if f.onSend != nil {
		f.onSend(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, d)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	return &Message{
		ID:             "srv-" + strconv.Itoa(f.nextID),
		ConversationID: conversationID,
		ClientID:       d.ClientID,
		Sender:         Person{ID: "me", DisplayName: "Me"},
		Content:        d.Content,
		Timestamp:      f.now,
	}, nil
}

func (f *fakeBackend) Edit(_ context.Context, conversationID, messageID, content string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageID == "missing" {
		return nil, errors.New("not found")
	}
	f.edited[messageID] = content
	return &Message{ID: messageID, ConversationID: conversationID, Sender: Person{ID: "me"}, Content: &content, IsEdited: true, Timestamp: f.now}, nil
}

func (f *fakeBackend) Delete(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageID == "missing" {
		return errors.New("not found")
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeBackend) Typing(_ context.Context, conversationID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{conversationID, active})
	return nil
}

func (f *fakeBackend) typingCalls() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.typing...)
}

// manualTimers replaces time.AfterFunc; fire runs the live callbacks.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (m *manualTimers) AfterFunc(_ time.Duration, f func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{f: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualTimers) fire() {
	m.mu.Lock()
	var live []*manualTimer
	for _, t := range m.timers {
		if !t.stopped {
			t.stopped = true
			live = append(live, t)
		}
	}
	m.mu.Unlock()
	for _, t := range live {
		t.f()
	}
}

// fireAll runs every callback, stopped or not, like timers that raced Stop.
func (m *manualTimers) fireAll() {
	m.mu.Lock()
	all := append([]*manualTimer(nil), m.timers...)
	m.mu.Unlock()
	for _, t := range all {
		t.f()
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newModel(b *fakeBackend) (*Model, *manualTimers, *clock) {
	timers := &manualTimers{}
	clk := &clock{t: b.now}
	seq := 0
	m := New(b, "c1", "me", Options{
		Log:       zerolog.Nop(),
		Now:       clk.Now,
		AfterFunc: timers.AfterFunc,
		Location:  time.UTC,
		NewID: func() string {
			seq++
			return "cid-" + strconv.Itoa(seq)
		},
	})
	return m, timers, clk
}

func msg(id, sender, content string, ts time.Time) Message {
	return Message{ID: id, ConversationID: "c1", Sender: Person{ID: sender}, Content: &content, Timestamp: ts}
}

func strp(s string) *string { return &s }

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
