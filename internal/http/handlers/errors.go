package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-chat/internal/services"
)

// Error codes carried in ErrorResponse.Code. Clients branch on these, not on
// the message text.
const (
	ErrCodeBadRequest          = "bad_request"
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeForbidden           = "forbidden"
	ErrCodeValidation          = "validation_failed"
	ErrCodeNotFound            = "not_found"
	ErrCodePayloadTooLarge     = "payload_too_large"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeInternal            = "internal_error"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
)

// failFrom reports a service error. Participation and validation failures
// both answer 400 and are told apart by code. Internal errors never leak
// their text to the client.
func failFrom(c *gin.Context, err error) {
	switch services.KindOf(err) {
	case services.KindUnauthorized:
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case services.KindForbidden:
		fail(c, http.StatusBadRequest, ErrCodeForbidden, err.Error())
	case services.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case services.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case services.KindUpstream:
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeUpstreamUnavailable, "image upload failed, try again")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
