package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-chat/internal/auth"
	"github.com/tbourn/go-social-chat/internal/config"
	"github.com/tbourn/go-social-chat/internal/directory"
	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/http/handlers"
	"github.com/tbourn/go-social-chat/internal/http/middleware"
	"github.com/tbourn/go-social-chat/internal/repo"
	"github.com/tbourn/go-social-chat/internal/services"
)

type fixture struct {
	r        *gin.Engine
	db       *gorm.DB
	verifier *auth.Verifier
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   50,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Chat:        config.ChatConfig{PageSize: 2, MaxContentRunes: 100},
		Assets:      config.AssetConfig{MaxUploadBytes: 1 << 20},
	}
}

// seedDB opens an in-memory database with friends alice and bob, plus carol
// who knows nobody.
func seedDB(t *testing.T) (*gorm.DB, *directory.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	dir := directory.NewStore(db)
	for _, u := range []domain.User{{ID: "alice", DisplayName: "Alice"}, {ID: "bob", DisplayName: "Bob"}, {ID: "carol", DisplayName: "Carol"}} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := dir.AddFriendship(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}
	return db, dir
}

// newFixture wires the real services without a realtime hub.
func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, dir := seedDB(t)

	convs := &services.ConversationService{DB: db, Users: dir, Friends: dir, PerPage: cfg.Chat.PageSize}
	msgs := &services.MessageService{DB: db, Users: dir, Posts: dir.PostIndex(), MaxContentRunes: cfg.Chat.MaxContentRunes}
	v := auth.NewVerifier("router-secret", "")

	r := gin.New()
	RegisterRoutes(r, Deps{
		Conversations: convs,
		Messages:      msgs,
		Ledger:        &handlers.DBLedger{DB: db, TTL: time.Hour},
		Verifier:      v,
	}, cfg)
	return &fixture{r: r, db: db, verifier: v}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		tok, err := f.verifier.Issue(user, time.Minute)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	f := newFixture(t, testConfig())

	w := f.do(t, http.MethodGet, "/health", "", nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("GET /health = %d rid=%q", w.Code, w.Header().Get("X-Request-ID"))
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	w = f.do(t, http.MethodGet, "/metrics", "", nil, nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics = %d", w.Code)
	}

	if w := f.do(t, http.MethodGet, "/nope", "", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/health", "", nil, nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/swagger/index.html", "", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger mounted while disabled: %d", w.Code)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	f := newFixture(t, cfg)

	w := f.do(t, http.MethodGet, "/swagger/doc.json", "", nil, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("sendMessage")) {
		t.Fatalf("doc.json = %d %.80s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_CORS(t *testing.T) {
	f := newFixture(t, testConfig())
	w := f.do(t, http.MethodGet, "/health", "", nil, map[string]string{"Origin": "http://any.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-all ACAO = %q", got)
	}

	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://app.example"}
	f = newFixture(t, cfg)
	w = f.do(t, http.MethodGet, "/health", "", nil, map[string]string{"Origin": "http://app.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Fatalf("allow-list ACAO = %q", got)
	}
	w = f.do(t, http.MethodGet, "/health", "", nil, map[string]string{"Origin": "http://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}

func TestRegisterRoutes_AuthRequired(t *testing.T) {
	f := newFixture(t, testConfig())
	for _, p := range []string{"/api/v1/conversations", "/ws"} {
		if w := f.do(t, http.MethodGet, p, "", nil, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without token = %d", p, w.Code)
		}
	}
	if w := f.do(t, http.MethodGet, "/api/v1/conversations", "", nil, map[string]string{"Authorization": "Bearer junk"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", w.Code)
	}
}

func TestRegisterRoutes_ConversationFlow(t *testing.T) {
	f := newFixture(t, testConfig())

	w := f.do(t, http.MethodPost, "/api/v1/conversations", "alice", map[string]string{"peerId": "bob"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("open: %d %s", w.Code, w.Body.String())
	}
	var opened handlers.OpenConversationResponse
	_ = json.Unmarshal(w.Body.Bytes(), &opened)
	base := "/api/v1/conversations/" + opened.ConversationID + "/messages"

	if w := f.do(t, http.MethodPost, "/api/v1/conversations", "alice", map[string]string{"peerId": "carol"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("open with stranger: %d", w.Code)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPost, base, "alice", map[string]string{"content": fmt.Sprintf("m%d", i), "clientId": fmt.Sprintf("tmp-%d", i)}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("send %d: %d %s", i, w.Code, w.Body.String())
		}
		var resp handlers.MessageResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Message.ClientID != fmt.Sprintf("tmp-%d", i) {
			t.Fatalf("clientId not echoed: %+v", resp.Message)
		}
		ids = append(ids, resp.Message.ID)
	}

	w = f.do(t, http.MethodGet, base, "bob", nil, nil)
	var page1 domain.Window
	if err := json.Unmarshal(w.Body.Bytes(), &page1); err != nil || w.Code != http.StatusOK {
		t.Fatalf("page 1: %d %v", w.Code, err)
	}
	if len(page1.Messages) != 2 || !page1.HasMore || page1.Messages[0].ID != ids[2] || page1.PeerSnapshot.ID != "alice" {
		t.Fatalf("page 1 = %+v", page1)
	}
	tag := w.Header().Get("ETag")
	if w := f.do(t, http.MethodGet, base, "bob", nil, map[string]string{"If-None-Match": tag}); w.Code != http.StatusNotModified {
		t.Fatalf("conditional page 1 = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, base+"?page=2", "bob", nil, nil)
	var page2 domain.Window
	_ = json.Unmarshal(w.Body.Bytes(), &page2)
	if len(page2.Messages) != 1 || page2.HasMore || page2.Messages[0].ID != ids[0] {
		t.Fatalf("page 2 = %+v", page2)
	}

	if w := f.do(t, http.MethodGet, base, "carol", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("outsider read = %d", w.Code)
	}

	if w := f.do(t, http.MethodPatch, base+"/"+ids[2], "bob", map[string]string{"content": "nope"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("peer edit = %d", w.Code)
	}
	if w := f.do(t, http.MethodPatch, base+"/"+ids[2], "alice", map[string]string{"content": "m2 edited"}, nil); w.Code != http.StatusOK {
		t.Fatalf("edit = %d %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodDelete, base+"/"+ids[1], "alice", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, base, "bob", nil, map[string]string{"If-None-Match": tag}); w.Code != http.StatusOK {
		t.Fatalf("stale tag after delete = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, base+"/"+ids[1], "alice", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/conversations", "bob", nil, nil)
	var list handlers.ListConversationsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Conversations) != 1 || list.Conversations[0].LastMessage == nil || *list.Conversations[0].LastMessage.Content != "m2 edited" {
		t.Fatalf("list = %+v", list)
	}
}

func TestRegisterRoutes_IdempotentSend(t *testing.T) {
	f := newFixture(t, testConfig())
	conv, err := repo.CreateConversation(context.Background(), f.db, "alice", "bob")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	path := "/api/v1/conversations/" + conv.ID + "/messages"
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "retry-1"}

	first := f.do(t, http.MethodPost, path, "alice", map[string]string{"content": "once"}, hdr)
	second := f.do(t, http.MethodPost, path, "alice", map[string]string{"content": "once"}, hdr)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("codes %d %d", first.Code, second.Code)
	}
	if second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatal("second send not replayed")
	}
	n, _ := repo.CountMessages(context.Background(), f.db, conv.ID)
	if n != 1 {
		t.Fatalf("stored %d messages", n)
	}
}

func TestRegisterRoutes_GzipOnAPI(t *testing.T) {
	f := newFixture(t, testConfig())
	w := f.do(t, http.MethodGet, "/api/v1/conversations", "alice", nil, map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("API response not compressed: %v", w.Header())
	}
	if w.Header().Get("Cache-Control") != "private, no-cache" {
		t.Fatalf("cache-control = %q", w.Header().Get("Cache-Control"))
	}
}

func Test_limitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}

	if got := bodyLimit(config.Config{}); got != 1<<20 {
		t.Fatalf("floor = %d", got)
	}
	if got := bodyLimit(config.Config{Assets: config.AssetConfig{MaxUploadBytes: 8 << 20}}); got != 8<<20+64<<10 {
		t.Fatalf("upload limit = %d", got)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/api/ping": "pong"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s = %d %q", path, w.Code, w.Body.String())
		}
	}
}
