// Package chatclient talks to the chat server over its REST API and the
// realtime websocket. A Client satisfies chatview.Backend, so a view model
// can be driven from a real process:
//
//	c := chatclient.New("https://chat.example", token)
//	s, _ := c.Connect(ctx)
//	m := chatview.New(c, convID, me, chatview.Options{})
//	go s.Drive(m)
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-chat/pkg/chatview"
)

// DefaultAPIPath is where the server mounts the REST API.
const DefaultAPIPath = "/api/v1"

// ErrNotConnected is returned by Typing before Connect succeeded.
var ErrNotConnected = errors.New("chatclient: realtime stream not connected")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status    int
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chat api: status %d", e.Status)
	}
	return fmt.Sprintf("chat api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Conversation is one row of the conversation list.
type Conversation struct {
	ConversationID string            `json:"conversationId"`
	Peer           chatview.Person   `json:"peer"`
	LastMessage    *chatview.Message `json:"lastMessage,omitempty"`
	IsGroup        bool              `json:"isGroup"`
}

// Client is safe for concurrent use once configured.
type Client struct {
	BaseURL string
	APIPath string
	Token   string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
	Log     zerolog.Logger

	mu     sync.Mutex
	stream *Stream
}

// New returns a client for the server at baseURL (scheme and host).
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIPath: DefaultAPIPath,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Dialer:  websocket.DefaultDialer,
		Log:     zerolog.Nop(),
	}
}

// Conversations lists the caller's conversations.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// Open creates or returns the conversation with an accepted friend.
func (c *Client) Open(ctx context.Context, peerID string) (conversationID string, created bool, err error) {
	var out struct {
		ConversationID string `json:"conversationId"`
		Created        bool   `json:"created"`
	}
	err = c.doJSON(ctx, http.MethodPost, "/conversations", map[string]string{"peerId": peerID}, nil, &out)
	return out.ConversationID, out.Created, err
}

// FetchWindow reads one page, page 1 being the newest.
func (c *Client) FetchWindow(ctx context.Context, conversationID string, page int) (*chatview.Page, error) {
	path := messagesPath(conversationID) + "?page=" + strconv.Itoa(page)
	var out chatview.Page
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Send posts a message. The draft's client id doubles as the
// Idempotency-Key, so retrying the same draft never stores it twice. A
// draft with an image is sent as multipart.
func (c *Client) Send(ctx context.Context, conversationID string, d chatview.Draft) (*chatview.Message, error) {
	hdr := http.Header{}
	if d.ClientID != "" {
		hdr.Set("Idempotency-Key", d.ClientID)
	}
	var out struct {
		Message *chatview.Message `json:"message"`
	}
	path := messagesPath(conversationID)
	if d.ImagePath == "" {
		body := map[string]any{"clientId": d.ClientID, "content": d.Content}
		if d.ForwardedFromUser != nil {
			body["forwardedFromUser"] = d.ForwardedFromUser
		}
		if d.ForwardedFromPost != nil {
			body["forwardedFromPost"] = d.ForwardedFromPost
		}
		if d.ReplyTo != nil {
			body["replyTo"] = d.ReplyTo
		}
		if err := c.doJSON(ctx, http.MethodPost, path, body, hdr, &out); err != nil {
			return nil, err
		}
	} else {
		body, ctype, err := multipartDraft(d)
		if err != nil {
			return nil, err
		}
		hdr.Set("Content-Type", ctype)
		if err := c.do(ctx, http.MethodPost, path, body, hdr, &out); err != nil {
			return nil, err
		}
	}
	if out.Message == nil {
		return nil, errors.New("chatclient: send answered without a message")
	}
	return out.Message, nil
}

// Edit replaces the content of one of the caller's messages.
func (c *Client) Edit(ctx context.Context, conversationID, messageID, content string) (*chatview.Message, error) {
	var out struct {
		Message *chatview.Message `json:"message"`
	}
	path := messagesPath(conversationID) + "/" + url.PathEscape(messageID)
	if err := c.doJSON(ctx, http.MethodPatch, path, map[string]string{"content": content}, nil, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

// Delete removes one of the caller's messages.
func (c *Client) Delete(ctx context.Context, conversationID, messageID string) error {
	path := messagesPath(conversationID) + "/" + url.PathEscape(messageID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Typing sends a typing or stopTyping signal on the connected stream.
func (c *Client) Typing(ctx context.Context, conversationID string, active bool) error {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.Typing(ctx, conversationID, active)
}

func messagesPath(conversationID string) string {
	return "/conversations/" + url.PathEscape(conversationID) + "/messages"
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, hdr http.Header, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		if hdr == nil {
			hdr = http.Header{}
		}
		hdr.Set("Content-Type", "application/json")
	}
	return c.do(ctx, method, path, body, hdr, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, hdr http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+c.APIPath+path, body)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		c.Log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("request_id", apiErr.RequestID).
			Msg("chat api error")
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// multipartDraft builds the multipart body with the image file and the
// remaining draft fields.
func multipartDraft(d chatview.Draft) (io.Reader, string, error) {
	f, err := os.Open(d.ImagePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]*string{
		"content":           d.Content,
		"forwardedFromUser": d.ForwardedFromUser,
		"forwardedFromPost": d.ForwardedFromPost,
		"replyTo":           d.ReplyTo,
	}
	if d.ClientID != "" {
		fields["clientId"] = &d.ClientID
	}
	for k, v := range fields {
		if v == nil {
			continue
		}
		if err := w.WriteField(k, *v); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("image", filepath.Base(d.ImagePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
