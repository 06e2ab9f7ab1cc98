package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-chat/internal/auth"
	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/http/middleware"
	"github.com/tbourn/go-social-chat/internal/services"
)

type stubConversations struct {
	list    []domain.ConversationSummary
	listErr error

	window    *domain.Window
	windowErr error
	tag       string
	tagErr    error
	fetches   int
	lastPage  int

	conv    *domain.Conversation
	created bool
	openErr error
}

func (s *stubConversations) List(context.Context, string) ([]domain.ConversationSummary, error) {
	return s.list, s.listErr
}

func (s *stubConversations) FetchWindow(_ context.Context, _, _ string, page int) (*domain.Window, error) {
	s.fetches++
	s.lastPage = page
	return s.window, s.windowErr
}

func (s *stubConversations) WindowTag(context.Context, string, string, int) (string, error) {
	return s.tag, s.tagErr
}

func (s *stubConversations) EnsureForFriendship(context.Context, string, string) (*domain.Conversation, bool, error) {
	return s.conv, s.created, s.openErr
}

type stubMessages struct {
	mu      sync.Mutex
	sent    []services.SendInput
	sendErr error
	// onSend, when set, inspects the input while the spooled image exists.
	onSend func(services.SendInput)

	stored map[string]*domain.MessageView
	getErr error

	editErr   error
	deleteErr error
	deleted   []string
}

func (s *stubMessages) Send(_ context.Context, uid, convID string, in services.SendInput) (*domain.MessageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onSend != nil {
		s.onSend(in)
	}
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.sent = append(s.sent, in)
	v := &domain.MessageView{
		ID:             "m" + strconv.Itoa(len(s.sent)),
		ConversationID: convID,
		ClientID:       in.ClientID,
		Sender:         domain.UserSummary{ID: uid, DisplayName: uid},
		Content:        in.Content,
		Timestamp:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if s.stored == nil {
		s.stored = map[string]*domain.MessageView{}
	}
	s.stored[v.ID] = v
	return v, nil
}

func (s *stubMessages) Get(_ context.Context, _, _, id string) (*domain.MessageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if v, ok := s.stored[id]; ok {
		return v, nil
	}
	return nil, services.ErrMessageNotFound
}

func (s *stubMessages) Edit(_ context.Context, uid, convID, id, content string) (*domain.MessageView, error) {
	if s.editErr != nil {
		return nil, s.editErr
	}
	return &domain.MessageView{ID: id, ConversationID: convID, Content: &content, IsEdited: true,
		Sender: domain.UserSummary{ID: uid}}, nil
}

func (s *stubMessages) Delete(_ context.Context, _, _, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

// memLedger is an in-memory SendLedger that also serves lookups.
type memLedger struct {
	mu   sync.Mutex
	recs map[string]string
}

func (l *memLedger) Record(_ context.Context, uid, convID, key, msgID string, _ int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recs == nil {
		l.recs = map[string]string{}
	}
	l.recs[uid+"|"+convID+"|"+key] = msgID
	return nil
}

func (l *memLedger) Lookup(_ context.Context, uid, convID, key string, _ time.Time) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recs[uid+"|"+convID+"|"+key], nil
}

// newTestRouter mounts the handlers the way the real router does, with a
// fake auth step that trusts the X-Test-User header.
func newTestRouter(h *Handlers, ledger *memLedger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u != "" {
			c.Set(auth.ContextKey, u)
		}
		c.Next()
	})
	var lookup middleware.IdempotencyLookup
	if ledger != nil {
		lookup = ledger.Lookup
	}
	r.Use(middleware.IdempotentSend(middleware.IdempotencyOptions{}, lookup))

	r.GET("/conversations", h.ListConversations)
	r.POST("/conversations", h.OpenConversation)
	r.GET("/conversations/:id/messages", h.FetchWindow)
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.GET("/conversations/:id/messages/:messageId", h.GetMessage)
	r.PATCH("/conversations/:id/messages/:messageId", h.EditMessage)
	r.DELETE("/conversations/:id/messages/:messageId", h.DeleteMessage)
	r.GET("/ws", h.Realtime)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, isRaw := body.(string); isRaw {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}

func strp(s string) *string { return &s }
