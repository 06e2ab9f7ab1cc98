package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-chat/internal/services"
)

func TestFailFrom_StatusAndCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrUnauthenticated, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.ErrNotParticipant, http.StatusBadRequest, ErrCodeForbidden},
		{services.ErrNotSender, http.StatusBadRequest, ErrCodeForbidden},
		{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeValidation},
		{services.ErrReplyTargetMissing, http.StatusBadRequest, ErrCodeValidation},
		{services.ErrConversationNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("upload: %w", services.ErrUpstreamUnavailable), http.StatusBadGateway, ErrCodeUpstreamUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { failFrom(c, tc.err) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			er := decodeError(t, w)
			if er.Code != tc.code {
				t.Fatalf("code = %q, want %q", er.Code, tc.code)
			}
			if tc.status == http.StatusInternalServerError && strings.Contains(er.Message, "disk") {
				t.Fatalf("internal error text leaked: %q", er.Message)
			}
		})
	}
}

func TestFail_LogsServerErrorsWithCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) { failFrom(c, errors.New("kaboom")) })
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if er := decodeError(t, w); er.RequestID != "rid-500" {
		t.Fatalf("request id = %q", er.RequestID)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), `"cause":"kaboom"`) {
		t.Fatalf("5xx not logged with cause: %s", buf.String())
	}

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound || buf.Len() != 0 {
		t.Fatalf("4xx: status=%d log=%q", w.Code, buf.String())
	}
}
