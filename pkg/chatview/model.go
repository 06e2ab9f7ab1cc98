package chatview

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultTypingIdle is how long after the last keystroke the local
	// typing broadcast is stopped.
	DefaultTypingIdle = 3 * time.Second
	// DefaultErrorTTL is how long a transient error stays visible.
	DefaultErrorTTL = 5 * time.Second
)

// Stopper is the part of *time.Timer the model uses.
type Stopper interface {
	Stop() bool
}

// Options tunes a Model. Zero values pick defaults.
type Options struct {
	Log        zerolog.Logger
	TypingIdle time.Duration
	ErrorTTL   time.Duration
	Location   *time.Location

	// OnChange is called, outside the model's lock, after every visible change.
	OnChange func()

	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Stopper
	NewID     func() string
}

func (o Options) withDefaults() Options {
	if o.TypingIdle <= 0 {
		o.TypingIdle = DefaultTypingIdle
	}
	if o.ErrorTTL <= 0 {
		o.ErrorTTL = DefaultErrorTTL
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Model holds the view state of one conversation.
type Model struct {
	conversationID string
	selfID         string
	backend        Backend
	opts           Options
	log            zerolog.Logger

	mu         sync.Mutex
	messages   []Message // newest first
	loaded     int       // pages applied so far
	shift      int       // confirmed rows deleted since the last page
	hasMore    bool
	peer       Person
	peerTyping bool

	loading bool
	sending int
	gen     uint64
	cancel  context.CancelFunc

	typing      bool
	typingSeq   uint64
	typingTimer Stopper

	err   error
	errAt time.Time

	closed bool
}

// New returns an empty, idle model for conversationID as seen by selfID.
func New(b Backend, conversationID, selfID string, opts Options) *Model {
	opts = opts.withDefaults()
	return &Model{
		conversationID: conversationID,
		selfID:         selfID,
		backend:        b,
		opts:           opts,
		log: opts.Log.With().
			Str("component", "chatview").
			Str("conversation_id", conversationID).
			Logger(),
	}
}

// ConversationID returns the conversation this model shows.
func (m *Model) ConversationID() string { return m.conversationID }

// State reports Loading while a fetch is in flight, otherwise Sending while
// any send is pending, otherwise Idle.
func (m *Model) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.loading:
		return Loading
	case m.sending > 0:
		return Sending
	}
	return Idle
}

// Messages returns a copy of the list, newest first.
func (m *Model) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// HasMore reports whether an older page is available.
func (m *Model) HasMore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasMore
}

// Peer returns the last known summary of the other participant.
func (m *Model) Peer() Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peer
}

// PeerTyping reports whether the peer is currently typing.
func (m *Model) PeerTyping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peerTyping
}

// Err returns the transient error, or nil once it has been visible for
// longer than the configured TTL.
func (m *Model) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil && m.opts.Now().Sub(m.errAt) > m.opts.ErrorTTL {
		m.err = nil
	}
	return m.err
}

// ClearError dismisses the transient error.
func (m *Model) ClearError() {
	m.mu.Lock()
	m.err = nil
	m.mu.Unlock()
	m.changed()
}

// Mount loads the newest page, replacing confirmed messages but keeping
// pending echoes on top.
func (m *Model) Mount(ctx context.Context) error {
	return m.fetch(ctx, 1, true)
}

// LoadMore fetches the next older page. It is a no-op when there is none.
// Deletions since the last page pull older rows forward across the page
// boundary, so the last page is read again first to pick them up.
func (m *Model) LoadMore(ctx context.Context) error {
	m.mu.Lock()
	last, shifted := m.loaded, m.shift > 0
	if last > 0 && !m.hasMore && !shifted {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	if last > 0 && shifted {
		if err := m.fetch(ctx, last, false); err != nil {
			return err
		}
		m.mu.Lock()
		more := m.hasMore
		m.mu.Unlock()
		if !more {
			return nil
		}
	}
	return m.fetch(ctx, last+1, last == 0)
}

// fetch cancels any older fetch, runs this one without the lock held and
// applies the result only if no newer fetch started meanwhile.
func (m *Model) fetch(ctx context.Context, page int, replace bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	m.gen++
	gen := m.gen
	m.cancel = cancel
	m.loading = true
	m.mu.Unlock()
	m.changed()

	p, err := m.backend.FetchWindow(ctx, m.conversationID, page)

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		cancel()
		m.log.Debug().Int("page", page).Msg("stale page discarded")
		return ErrSuperseded
	}
	m.loading = false
	m.cancel = nil
	cancel()
	if err != nil {
		// A failed page leaves the list as it was; only the spinner stops.
		m.mu.Unlock()
		m.changed()
		m.log.Warn().Err(err).Int("page", page).Msg("fetch failed")
		return err
	}
	m.applyPageLocked(p, page, replace)
	m.mu.Unlock()
	m.changed()
	return nil
}

func (m *Model) applyPageLocked(p *Page, page int, replace bool) {
	if replace {
		var pending []Message
		for _, msg := range m.messages {
			if msg.IsTemp {
				pending = append(pending, msg)
			}
		}
		m.messages = pending
	}
	for _, msg := range p.Messages {
		// New arrivals shift older pages; skip rows already shown.
		if m.indexByIDLocked(msg.ID) >= 0 {
			continue
		}
		msg.IsOwn = msg.Sender.ID == m.selfID
		m.messages = append(m.messages, msg)
	}
	m.loaded = page
	m.shift = 0
	m.hasMore = p.HasMore
	if p.PeerSnapshot.ID != "" {
		m.peer = p.PeerSnapshot
	}
}

// Send prepends an optimistic echo, performs the send and reconciles the
// echo with the confirmed message. On failure the echo is removed and a
// transient error is raised.
func (m *Model) Send(ctx context.Context, d Draft) (*Message, error) {
	if contentOf(d.Content) == "" && d.ImagePath == "" {
		return nil, ErrEmptyDraft
	}
	if d.ClientID == "" {
		d.ClientID = m.opts.NewID()
	}
	echo := Message{
		ID:                "temp-" + d.ClientID,
		ConversationID:    m.conversationID,
		ClientID:          d.ClientID,
		Sender:            Person{ID: m.selfID},
		Content:           trimmed(d.Content),
		Timestamp:         m.opts.Now(),
		ForwardedFromPost: d.ForwardedFromPost,
		ReplyTo:           d.ReplyTo,
		IsTemp:            true,
		IsOwn:             true,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.messages = append([]Message{echo}, m.messages...)
	m.sending++
	m.mu.Unlock()
	m.changed()

	// A send ends the current typing burst.
	m.StopTyping(ctx)

	confirmed, err := m.backend.Send(ctx, m.conversationID, d)

	m.mu.Lock()
	m.sending--
	if err != nil {
		if i := m.indexByIDLocked(echo.ID); i >= 0 {
			m.removeAtLocked(i)
		}
		m.setErrLocked(err)
		m.mu.Unlock()
		m.changed()
		m.log.Warn().Err(err).Str("client_id", d.ClientID).Msg("send failed")
		return nil, err
	}
	if confirmed.ClientID == "" {
		confirmed.ClientID = d.ClientID
	}
	out := m.reconcileLocked(*confirmed)
	m.mu.Unlock()
	m.changed()
	return &out, nil
}

// reconcileLocked merges a confirmed message into the list and returns the
// stored copy. An entry with the same id is updated in place and any echo
// it answers is dropped; otherwise the matching echo is replaced in place;
// otherwise the message is prepended.
func (m *Model) reconcileLocked(msg Message) Message {
	msg.IsTemp = false
	msg.IsOwn = msg.Sender.ID == m.selfID

	echo := m.echoForLocked(msg)
	if i := m.indexByIDLocked(msg.ID); i >= 0 {
		m.messages[i] = msg
		if echo >= 0 {
			m.removeAtLocked(echo)
		}
		return msg
	}
	if echo >= 0 {
		m.messages[echo] = msg
		return msg
	}
	m.messages = append([]Message{msg}, m.messages...)
	return msg
}

// echoForLocked finds the pending echo a confirmation answers: by client id
// when the confirmation carries one, else the first own echo with equal
// content.
func (m *Model) echoForLocked(msg Message) int {
	if !msg.IsOwn {
		return -1
	}
	if msg.ClientID != "" {
		for i, e := range m.messages {
			if e.IsTemp && e.ClientID == msg.ClientID {
				return i
			}
		}
		return -1
	}
	want := contentOf(msg.Content)
	for i, e := range m.messages {
		if e.IsTemp && e.IsOwn && contentOf(e.Content) == want {
			return i
		}
	}
	return -1
}

// Edit changes the content of one of the user's messages.
func (m *Model) Edit(ctx context.Context, messageID, content string) (*Message, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	updated, err := m.backend.Edit(ctx, m.conversationID, messageID, content)
	m.mu.Lock()
	if err != nil {
		m.setErrLocked(err)
		m.mu.Unlock()
		m.changed()
		return nil, err
	}
	updated.IsOwn = updated.Sender.ID == m.selfID
	if i := m.indexByIDLocked(messageID); i >= 0 {
		m.messages[i] = *updated
	}
	m.mu.Unlock()
	m.changed()
	return updated, nil
}

// Delete removes one of the user's messages.
func (m *Model) Delete(ctx context.Context, messageID string) error {
	if m.isClosed() {
		return ErrClosed
	}
	if err := m.backend.Delete(ctx, m.conversationID, messageID); err != nil {
		m.mu.Lock()
		m.setErrLocked(err)
		m.mu.Unlock()
		m.changed()
		return err
	}
	m.ApplyDeleted(m.conversationID, messageID)
	return nil
}

// ApplyNewMessage handles a pushed message. Pushes for other conversations
// are ignored.
func (m *Model) ApplyNewMessage(msg Message) {
	if msg.ConversationID != "" && msg.ConversationID != m.conversationID {
		return
	}
	m.mu.Lock()
	m.reconcileLocked(msg)
	m.mu.Unlock()
	m.changed()
}

// ApplyEdited handles a pushed edit, located by message id.
func (m *Model) ApplyEdited(conversationID, messageID, content string) {
	if conversationID != m.conversationID {
		return
	}
	m.mu.Lock()
	i := m.indexByIDLocked(messageID)
	if i >= 0 {
		c := content
		m.messages[i].Content = &c
		m.messages[i].IsEdited = true
	}
	m.mu.Unlock()
	if i >= 0 {
		m.changed()
	}
}

// ApplyDeleted handles a pushed delete, located by message id.
func (m *Model) ApplyDeleted(conversationID, messageID string) {
	if conversationID != m.conversationID {
		return
	}
	m.mu.Lock()
	i := m.indexByIDLocked(messageID)
	if i >= 0 {
		if !m.messages[i].IsTemp {
			m.shift++
		}
		m.removeAtLocked(i)
	}
	m.mu.Unlock()
	if i >= 0 {
		m.changed()
	}
}

// ApplyTyping sets or clears the peer's typing flag.
func (m *Model) ApplyTyping(conversationID, senderID string, active bool) {
	if conversationID != m.conversationID || senderID == m.selfID {
		return
	}
	m.mu.Lock()
	m.peerTyping = active
	m.mu.Unlock()
	m.changed()
}

// ApplyPresence updates the peer's status when userID is the peer.
func (m *Model) ApplyPresence(userID, status string) {
	m.mu.Lock()
	hit := userID != "" && userID == m.peer.ID
	if hit {
		m.peer.Status = status
		if status != "online" {
			m.peerTyping = false
		}
	}
	m.mu.Unlock()
	if hit {
		m.changed()
	}
}

// Close cancels an in-flight fetch, stops the typing broadcast and makes
// further actions fail with ErrClosed.
func (m *Model) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.loading = false
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.StopTyping(ctx)
}

func (m *Model) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Model) indexByIDLocked(id string) int {
	for i := range m.messages {
		if m.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Model) removeAtLocked(i int) {
	m.messages = append(m.messages[:i], m.messages[i+1:]...)
}

func (m *Model) setErrLocked(err error) {
	m.err = err
	m.errAt = m.opts.Now()
}

func (m *Model) changed() {
	if m.opts.OnChange != nil {
		m.opts.OnChange()
	}
}

// contentOf is the comparison form of message text.
func contentOf(p *string) string {
	if p == nil {
		return ""
	}
	return norm.NFC.String(strings.TrimSpace(*p))
}

func trimmed(p *string) *string {
	s := contentOf(p)
	if s == "" {
		return nil
	}
	return &s
}
