// Package handlers provides the HTTP handlers of the chat API.
//
// Every error leaves through fail (directly or via failFrom) so clients
// always see the same envelope:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "forbidden",
//	  "message": "not a participant of this conversation"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-chat/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Code is one of the ErrCode constants.
	Code    string `json:"code" example:"not_found"`
	Message string `json:"message" example:"conversation not found"`
}

// fail aborts with an ErrorResponse. 5xx answers are logged on the
// request-scoped logger together with the last gin error, if any.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := middleware.RequestIDFrom(c)
	if reqID == "" {
		reqID = c.Writer.Header().Get("X-Request-ID")
	}

	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error()
		if len(c.Errors) > 0 {
			ev = ev.Str("cause", c.Errors.Last().Error())
		}
		ev.Int("status", status).Str("code", code).Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: reqID, Code: code, Message: msg})
}

// Fail is fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
