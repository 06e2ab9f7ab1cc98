package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/services"
)

func TestListConversations(t *testing.T) {
	convs := &stubConversations{}
	r := newTestRouter(New(convs, &stubMessages{}, nil, nil, Uploads{}), nil)

	w := doJSON(t, r, http.MethodGet, "/conversations", "alice", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"conversations":[]}` {
		t.Fatalf("empty list: %d %s", w.Code, w.Body.String())
	}

	convs.list = []domain.ConversationSummary{{ConversationID: "c1", Peer: domain.UserSummary{ID: "bob"}}}
	w = doJSON(t, r, http.MethodGet, "/conversations", "alice", nil, nil)
	var resp ListConversationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Conversations) != 1 {
		t.Fatalf("list: %v %s", err, w.Body.String())
	}

	convs.listErr = services.ErrUnauthenticated
	if w := doJSON(t, r, http.MethodGet, "/conversations", "", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: %d", w.Code)
	}
}

func TestOpenConversation(t *testing.T) {
	convs := &stubConversations{conv: &domain.Conversation{ID: "c1", UserA: "alice", UserB: "bob"}, created: true}
	r := newTestRouter(New(convs, &stubMessages{}, nil, nil, Uploads{}), nil)

	w := doJSON(t, r, http.MethodPost, "/conversations", "alice", OpenConversationRequest{PeerID: "bob"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first open: %d %s", w.Code, w.Body.String())
	}
	var resp OpenConversationResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ConversationID != "c1" || resp.PeerID != "bob" || !resp.Created {
		t.Fatalf("resp = %+v", resp)
	}

	convs.created = false
	if w := doJSON(t, r, http.MethodPost, "/conversations", "alice", OpenConversationRequest{PeerID: "bob"}, nil); w.Code != http.StatusOK {
		t.Fatalf("repeat open: %d", w.Code)
	}

	if w := doJSON(t, r, http.MethodPost, "/conversations", "alice", `{"peerId":"  "}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank peer: %d", w.Code)
	}

	convs.openErr = services.ErrNotFriends
	w = doJSON(t, r, http.MethodPost, "/conversations", "alice", OpenConversationRequest{PeerID: "carol"}, nil)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != ErrCodeValidation {
		t.Fatalf("not friends: %d %s", w.Code, w.Body.String())
	}
}

func TestFetchWindow_ETagAndPaging(t *testing.T) {
	convs := &stubConversations{
		tag:    `W/"window:c1:1:2:99:online"`,
		window: &domain.Window{HasMore: true, PeerSnapshot: domain.UserSummary{ID: "bob"}},
	}
	r := newTestRouter(New(convs, &stubMessages{}, nil, nil, Uploads{}), nil)

	w := doJSON(t, r, http.MethodGet, "/conversations/c1/messages", "alice", nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") != convs.tag {
		t.Fatalf("first fetch: %d etag=%q", w.Code, w.Header().Get("ETag"))
	}
	if convs.lastPage != 1 {
		t.Fatalf("default page = %d", convs.lastPage)
	}
	var win domain.Window
	if err := json.Unmarshal(w.Body.Bytes(), &win); err != nil || !win.HasMore || win.Messages == nil {
		t.Fatalf("window body %s (%v)", w.Body.String(), err)
	}

	w = doJSON(t, r, http.MethodGet, "/conversations/c1/messages?page=1", "alice", nil, map[string]string{"If-None-Match": convs.tag})
	if w.Code != http.StatusNotModified || convs.fetches != 1 {
		t.Fatalf("conditional fetch: %d fetches=%d", w.Code, convs.fetches)
	}

	doJSON(t, r, http.MethodGet, "/conversations/c1/messages?page=3", "alice", nil, nil)
	if convs.lastPage != 3 {
		t.Fatalf("page = %d", convs.lastPage)
	}

	for _, bad := range []string{"0", "-2", "abc"} {
		if w := doJSON(t, r, http.MethodGet, "/conversations/c1/messages?page="+bad, "alice", nil, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("page=%s: %d", bad, w.Code)
		}
	}
}

func TestFetchWindow_MembershipCheckedBeforeETag(t *testing.T) {
	convs := &stubConversations{tagErr: services.ErrNotParticipant}
	r := newTestRouter(New(convs, &stubMessages{}, nil, nil, Uploads{}), nil)

	w := doJSON(t, r, http.MethodGet, "/conversations/c1/messages", "carol", nil, nil)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != ErrCodeForbidden {
		t.Fatalf("non-member: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") != "" || convs.fetches != 0 {
		t.Fatal("non-member saw a tag or triggered a fetch")
	}
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 1, false},
		{"  ", 1, false},
		{"1", 1, false},
		{" 7 ", 7, false},
		{"0", 0, true},
		{"-2", 0, true},
		{"two", 0, true},
		{"3.5", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tc := range cases {
		got, err := parsePage(tc.raw)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("parsePage(%q) = %d, %v", tc.raw, got, err)
		}
	}
}
