package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-chat/internal/auth"
	"github.com/tbourn/go-social-chat/internal/http/middleware"
)

// Realtime godoc
// @ID          realtime
// @Summary     Open the realtime channel
// @Description Upgrades to a websocket. The server pushes newMessage, messageEdited,
// @Description messageDeleted, onTyping, onStopTyping, friendOnline and friendOffline
// @Description events; the client sends typing and stopTyping signals. Browsers pass
// @Description the bearer token as the "token" query parameter.
// @Tags        Realtime
// @Security    BearerAuth
// @Param       token  query  string  false  "Bearer token when headers cannot be set"
// @Success     101  {string}  string "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /ws [get]
func (h *Handlers) Realtime(c *gin.Context) {
	if h.sockets == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "realtime channel disabled")
		return
	}
	uid := auth.UserID(c)
	if err := h.sockets.ServeWS(c.Writer, c.Request, uid); err != nil {
		// The upgrader has already answered the client.
		middleware.LoggerFrom(c).Debug().Err(err).Str("user_id", uid).Msg("websocket upgrade failed")
		c.Abort()
	}
}
