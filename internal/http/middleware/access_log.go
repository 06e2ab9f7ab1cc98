package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// AccessLogOptions lists extra headers and query parameters whose values are
// never written to logs. Authorization, Cookie and Set-Cookie headers and the
// websocket "token" query parameter are always masked.
type AccessLogOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	jwtRE   = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*`)
)

// scrubber masks secrets in header values and query strings.
type scrubber struct {
	headers map[string]struct{}
	query   map[string]struct{}
}

func newScrubber(opts AccessLogOptions) scrubber {
	s := scrubber{
		headers: map[string]struct{}{"authorization": {}, "cookie": {}, "set-cookie": {}},
		query:   map[string]struct{}{"token": {}, "access_token": {}},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.headers[h] = struct{}{}
		}
	}
	for _, q := range opts.MaskQuery {
		if q = strings.ToLower(strings.TrimSpace(q)); q != "" {
			s.query[q] = struct{}{}
		}
	}
	return s
}

func (s scrubber) text(v string) string {
	if v == "" {
		return v
	}
	v = jwtRE.ReplaceAllString(v, redacted)
	return emailRE.ReplaceAllString(v, "[REDACTED:email]")
}

func (s scrubber) rawQuery(raw string) string {
	if raw == "" {
		return raw
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redacted
	}
	for k, vv := range vals {
		if _, masked := s.query[strings.ToLower(k)]; masked {
			vals[k] = []string{redacted}
			continue
		}
		for i := range vv {
			vv[i] = s.text(vv[i])
		}
	}
	// Encode escapes the brackets; logs read better without that.
	out, _ := url.QueryUnescape(vals.Encode())
	return out
}

func (s scrubber) headerMap(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, masked := s.headers[strings.ToLower(k)]; masked {
			out[k] = redacted
			continue
		}
		out[k] = s.text(strings.Join(vv, ", "))
	}
	return out
}

// AccessLog installs a request-scoped zerolog logger (see LoggerFrom) and
// writes one structured line per request once the handler chain returns.
// Bodies are never logged. Level follows status: info, warn for 4xx, error
// for 5xx or when handlers attached gin errors.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	sc := newScrubber(opts)
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		query := sc.rawQuery(c.Request.URL.RawQuery)
		headers := sc.headerMap(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = l.Warn()
		}
		ev.
			Str("user_id", asString(c.Value("userID"))).
			Str("conversation_id", c.Param("id")).
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
