// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access log. It writes one structured line per
// request through the request-scoped logger, so request_id and user_id come
// along, and scrubs what a social API tends to leak: credentials in headers,
// free-text search terms, and email addresses or phone numbers typed into
// query strings. Bodies (captions, comments, messages) are never logged.
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const redacted = "[REDACTED]"

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits and separators only; hex IDs in opaque headers are skipped.
	phoneRE = regexp.MustCompile(`\+?\b(?:\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced entirely, in addition to Authorization,
	// Cookie and Set-Cookie. Case-insensitive.
	MaskHeaders []string

	// MaskQuery names query parameters whose values are replaced entirely.
	// Defaults to "q", the profile search term.
	MaskQuery []string
}

// scrub replaces email addresses and phone numbers in s.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// scrubQuery masks listed parameters and scrubs the rest. Keys are sorted so
// identical requests log identically. Unparseable queries are scrubbed raw.
func scrubQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return truncate(scrub(raw), maxQueryLogLength)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			if hasKey(mask, strings.ToLower(k)) {
				b.WriteString(redacted)
			} else {
				b.WriteString(scrub(v))
			}
		}
	}
	return truncate(b.String(), maxQueryLogLength)
}

// opaqueHeaders carry IDs and tokens the scrubber would mangle.
var opaqueHeaders = lowerSet([]string{requestIDHeader, HeaderIdempotencyKey, HeaderUserID, "If-None-Match"}, nil)

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

func lowerSet(defaults []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(defaults)+len(extra))
	for _, s := range append(append([]string{}, defaults...), extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// RedactingLogger returns the access-log middleware. Level follows the
// outcome: error for 5xx or when handlers attached gin errors, warn for 4xx,
// info otherwise. Logged fields are method, route template, scrubbed query,
// scrubbed headers, status, latency, bytes in and out, and whether the
// request was an idempotent replay.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	queryDefaults := []string{"q"}
	if opts.MaskQuery != nil {
		queryDefaults = nil
	}
	maskQuery := lowerSet(queryDefaults, opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()
		query := scrubQuery(c.Request.URL.RawQuery, maskQuery)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			lk := strings.ToLower(k)
			v := strings.Join(vv, ", ")
			switch {
			case hasKey(maskHeaders, lk):
				headers[k] = redacted
			case hasKey(opaqueHeaders, lk):
				headers[k] = v
			default:
				headers[k] = scrub(v)
			}
		}

		c.Next()

		status := c.Writer.Status()
		rid := c.Writer.Header().Get(requestIDHeader)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}

		_, scoped := c.Get(loggerKey)
		lg := LoggerFrom(c)
		ev := lg.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}

		// Without a scoped logger the line needs its own request_id.
		if !scoped {
			ev = ev.Str("request_id", rid)
		}
		ev.
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Str("query", query).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Bool("replay", IsReplay(c)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
