package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-chat/internal/assets"
	"github.com/tbourn/go-social-chat/internal/auth"
	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/http/middleware"
	"github.com/tbourn/go-social-chat/internal/services"
)

// SendMessageRequest is the JSON form of a send. Images travel only in the
// multipart form, as the "image" file next to the same fields.
type SendMessageRequest struct {
	// ClientID is echoed back on the stored message and in the peer's push
	// so the sender can reconcile its optimistic copy.
	ClientID          string  `json:"clientId" form:"clientId" example:"tmp-1712345678901"`
	Content           *string `json:"content" form:"content" example:"see you at 8"`
	ForwardedFromUser *string `json:"forwardedFromUser" form:"forwardedFromUser"`
	ForwardedFromPost *string `json:"forwardedFromPost" form:"forwardedFromPost"`
	ReplyTo           *string `json:"replyTo" form:"replyTo"`
}

// EditMessageRequest carries replacement text.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required" example:"see you at 9"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Message *domain.MessageView `json:"message"`
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Appends a message to the conversation and pushes it to the peer.
// @Description Accepts JSON, or multipart/form-data with an optional "image" file.
// @Description A repeated Idempotency-Key replays the first result.
// @Tags        Messages
// @Accept      json
// @Accept      mpfd
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string                       true   "Conversation ID"  format(uuid)
// @Param       Idempotency-Key  header    string                       false  "Retry key"
// @Param       body             body      handlers.SendMessageRequest  false  "JSON send"
// @Param       image            formData  file                         false  "Image attachment"
// @Success     201  {object}  handlers.MessageResponse
// @Header      201  {string}  Idempotency-Replayed  "true when served from a previous send"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     413  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse "Asset service unavailable"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	convID, uid := c.Param("id"), auth.UserID(c)

	if msgID, replay := middleware.ReplayOf(c); replay {
		if prev, err := h.messages.Get(ctx, uid, convID, msgID); err == nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusCreated, MessageResponse{Message: prev})
			return
		}
		// The recorded message is gone; treat the request as a fresh send.
	}

	in, cleanup, err := h.bindSend(c)
	defer cleanup()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	msg, err := h.messages.Send(ctx, uid, convID, in)
	if err != nil {
		failFrom(c, err)
		return
	}

	if key, has := middleware.GetIdempotencyKey(c); has && h.ledger != nil {
		if err := h.ledger.Record(ctx, uid, convID, key, msg.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("message_id", msg.ID).Msg("record idempotency key")
		}
	}
	ok(c, http.StatusCreated, MessageResponse{Message: msg})
}

// bindSend decodes either body form. For multipart sends the image is
// spooled to disk; cleanup removes it and is always safe to call.
func (h *Handlers) bindSend(c *gin.Context) (services.SendInput, func(), error) {
	noop := func() {}
	var req SendMessageRequest

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return services.SendInput{}, noop, err
			}
			return services.SendInput{}, noop, errors.New("invalid JSON body")
		}
		return req.input(""), noop, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploads.MaxBytes)
	if err := c.ShouldBind(&req); err != nil {
		return services.SendInput{}, noop, err
	}
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req.input(""), noop, nil
	}
	if err != nil {
		return services.SendInput{}, noop, err
	}
	path, err := spool(fh, h.uploads.Dir)
	if err != nil {
		return services.SendInput{}, noop, err
	}
	return req.input(path), func() { assets.Discard(path) }, nil
}

func (r SendMessageRequest) input(imagePath string) services.SendInput {
	return services.SendInput{
		ClientID:          r.ClientID,
		Content:           r.Content,
		ImagePath:         imagePath,
		ForwardedFromUser: r.ForwardedFromUser,
		ForwardedFromPost: r.ForwardedFromPost,
		ReplyTo:           r.ReplyTo,
	}
}

// spool copies an uploaded part into a fresh file under dir.
func spool(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(dir, "chat-upload-*")
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		assets.Discard(dst.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		assets.Discard(dst.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return dst.Name(), nil
}

// GetMessage godoc
// @ID          getMessage
// @Summary     Read one message
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id         path  string  true  "Conversation ID"  format(uuid)
// @Param       messageId  path  string  true  "Message ID"       format(uuid)
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/messages/{messageId} [get]
func (h *Handlers) GetMessage(c *gin.Context) {
	msg, err := h.messages.Get(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("messageId"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: msg})
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a message
// @Description Only the sender may edit. The peer receives a messageEdited push.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id         path  string                       true  "Conversation ID"  format(uuid)
// @Param       messageId  path  string                       true  "Message ID"       format(uuid)
// @Param       body       body  handlers.EditMessageRequest  true  "New content"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/messages/{messageId} [patch]
func (h *Handlers) EditMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	msg, err := h.messages.Edit(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("messageId"), req.Content)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: msg})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message
// @Description Only the sender may delete. The row is removed; the peer receives
// @Description a messageDeleted push.
// @Tags        Messages
// @Security    BearerAuth
// @Param       id         path  string  true  "Conversation ID"  format(uuid)
// @Param       messageId  path  string  true  "Message ID"       format(uuid)
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/messages/{messageId} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	if err := h.messages.Delete(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("messageId")); err != nil {
		failFrom(c, err)
		return
	}
	noContent(c)
}
