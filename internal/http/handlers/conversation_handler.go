package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-chat/internal/auth"
	"github.com/tbourn/go-social-chat/internal/domain"
)

// ListConversationsResponse wraps the caller's conversations, most recently
// active first.
type ListConversationsResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}

// OpenConversationRequest names the accepted friend to open a conversation
// with.
type OpenConversationRequest struct {
	PeerID string `json:"peerId" binding:"required" example:"bob"`
}

// OpenConversationResponse reports the conversation id and whether this
// call created it.
type OpenConversationResponse struct {
	ConversationID string `json:"conversationId" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	PeerID         string `json:"peerId" example:"bob"`
	Created        bool   `json:"created"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns the caller's conversations with peer summary and last message.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListConversationsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	items, err := h.conversations.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		failFrom(c, err)
		return
	}
	if items == nil {
		items = []domain.ConversationSummary{}
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items})
}

// OpenConversation godoc
// @ID          openConversation
// @Summary     Open the conversation with a friend
// @Description Called when a friend request is accepted. Creates the two-party
// @Description conversation on first call and returns the existing one afterwards.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.OpenConversationRequest  true  "Peer"
// @Success     201   {object}  handlers.OpenConversationResponse "Created"
// @Success     200   {object}  handlers.OpenConversationResponse "Already existed"
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Router      /conversations [post]
func (h *Handlers) OpenConversation(c *gin.Context) {
	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PeerID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "peerId required")
		return
	}
	uid := auth.UserID(c)
	conv, created, err := h.conversations.EnsureForFriendship(c.Request.Context(), uid, strings.TrimSpace(req.PeerID))
	if err != nil {
		failFrom(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, OpenConversationResponse{
		ConversationID: conv.ID,
		PeerID:         conv.PeerOf(uid),
		Created:        created,
	})
}

// FetchWindow godoc
// @ID          fetchWindow
// @Summary     Read a page of messages
// @Description Page 1 holds the newest messages. Messages inside a page are newest
// @Description first; hasMore tells whether an older page exists. Supports a weak
// @Description ETag via If-None-Match.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Conversation ID"  format(uuid)
// @Param       page           query   int     false  "Page, 1 = newest" minimum(1) default(1)
// @Param       If-None-Match  header  string  false  "Previously returned ETag"
// @Success     200  {object}  domain.Window
// @Header      200  {string}  ETag  "Weak validator for this page"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) FetchWindow(c *gin.Context) {
	ctx := c.Request.Context()
	convID, uid := c.Param("id"), auth.UserID(c)

	page, err := parsePage(c.Query("page"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	tag, err := h.conversations.WindowTag(ctx, convID, uid, page)
	if err != nil {
		failFrom(c, err)
		return
	}
	c.Header("ETag", tag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == tag {
		c.Status(http.StatusNotModified)
		return
	}

	win, err := h.conversations.FetchWindow(ctx, convID, uid, page)
	if err != nil {
		failFrom(c, err)
		return
	}
	if win.Messages == nil {
		win.Messages = []domain.MessageView{}
	}
	ok(c, http.StatusOK, win)
}

var errBadPage = errors.New("page must be a positive integer")

// parsePage reads the 1-based page query. Absent means the newest page.
func parsePage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	p, err := strconv.Atoi(raw)
	if err != nil || p < 1 {
		return 0, errBadPage
	}
	return p, nil
}
