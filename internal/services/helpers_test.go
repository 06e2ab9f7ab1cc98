package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-chat/internal/directory"
	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/push"
	"github.com/tbourn/go-social-chat/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// world seeds alice, bob and carol; alice and bob are friends and share a
// conversation.
type world struct {
	db    *gorm.DB
	dir   *directory.Store
	conv  *domain.Conversation
	notes *recordingNotifier
}

func newWorld(t *testing.T) *world {
	t.Helper()
	db := newSvcDB(t)
	dir := directory.NewStore(db)
	for _, u := range []domain.User{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob", DisplayName: "Bob"},
		{ID: "carol", DisplayName: "Carol"},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := dir.AddFriendship(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}
	conv, err := repo.CreateConversation(context.Background(), db, "alice", "bob")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return &world{db: db, dir: dir, conv: conv, notes: &recordingNotifier{}}
}

func (w *world) messages() *MessageService {
	return &MessageService{
		DB:       w.db,
		Users:    w.dir,
		Posts:    w.dir.PostIndex(),
		Notifier: w.notes,
		Async:    func(f func()) { f() },
	}
}

func (w *world) conversations() *ConversationService {
	return &ConversationService{DB: w.db, Users: w.dir, Friends: w.dir}
}

func strp(s string) *string { return &s }

type note struct {
	kind      string
	actor     string
	to        string
	messageID string
	content   string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (r *recordingNotifier) add(n note) push.DeliveryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return push.Delivered
}

func (r *recordingNotifier) all() []note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]note(nil), r.notes...)
}

func (r *recordingNotifier) NewMessage(_ context.Context, actor domain.UserSummary, to string, msg domain.MessageView) push.DeliveryResult {
	c := ""
	if msg.Content != nil {
		c = *msg.Content
	}
	return r.add(note{kind: "new", actor: actor.ID, to: to, messageID: msg.ID, content: c})
}

func (r *recordingNotifier) MessageEdited(_ context.Context, actor domain.UserSummary, to string, msg domain.MessageView) push.DeliveryResult {
	return r.add(note{kind: "edited", actor: actor.ID, to: to, messageID: msg.ID, content: *msg.Content})
}

func (r *recordingNotifier) MessageDeleted(_ context.Context, actor domain.UserSummary, to, _, messageID string) push.DeliveryResult {
	return r.add(note{kind: "deleted", actor: actor.ID, to: to, messageID: messageID})
}

type fakeUploader struct {
	url   string
	err   error
	calls []string
}

func (f *fakeUploader) Upload(_ context.Context, path string) (string, error) {
	f.calls = append(f.calls, path)
	return f.url, f.err
}

var errBoom = errors.New("boom")

type fakePresence map[string]domain.PresenceStatus

func (p fakePresence) Decorate(s domain.UserSummary) domain.UserSummary {
	s.Status = p[s.ID]
	if s.Status == "" {
		s.Status = domain.StatusOffline
	}
	return s
}

// notifyFunc calls f on NewMessage and ignores the rest.
type notifyFunc func()

func (f notifyFunc) NewMessage(context.Context, domain.UserSummary, string, domain.MessageView) push.DeliveryResult {
	f()
	return push.Delivered
}

func (notifyFunc) MessageEdited(context.Context, domain.UserSummary, string, domain.MessageView) push.DeliveryResult {
	return push.Delivered
}

func (notifyFunc) MessageDeleted(context.Context, domain.UserSummary, string, string, string) push.DeliveryResult {
	return push.Delivered
}
