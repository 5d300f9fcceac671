package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/realtime"
)

// Text limits, in runes.
const (
	MaxCaptionRunes = 500
	MaxCommentRunes = 500
	MaxMessageRunes = 2000
	MaxBioRunes     = 150
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageBounds converts 1-based page/pageSize into offset/limit.
func pageBounds(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return (page - 1) * pageSize, pageSize
}

var whitespaceRE = regexp.MustCompile(`[ \t]+`)

// normalizeText trims, NFC-normalizes and collapses runs of spaces and tabs.
// Newlines are kept.
func normalizeText(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return whitespaceRE.ReplaceAllString(s, " ")
}

// checkText normalizes s and enforces 1..limit runes.
func checkText(s string, limit int) (string, error) {
	s = normalizeText(s)
	if s == "" {
		return "", ErrInvalidInput
	}
	if utf8.RuneCountInString(s) > limit {
		return "", ErrTooLong
	}
	return s, nil
}

func publish(ctx context.Context, bus realtime.Publisher, events ...realtime.Event) {
	if bus == nil {
		return
	}
	for _, e := range events {
		bus.Publish(ctx, e)
	}
}

func logFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// snapshots resolves ids to profile snapshots. Missing rows, or a failed
// lookup, yield placeholders; degraded reports how many were substituted.
func snapshots(profiles map[string]domain.Profile, ids []string) (out map[string]domain.ProfileSnapshot, degraded int) {
	out = make(map[string]domain.ProfileSnapshot, len(ids))
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		if p, ok := profiles[id]; ok {
			out[id] = p.Snapshot()
			continue
		}
		out[id] = domain.PlaceholderProfile(id)
		degraded++
	}
	return out, degraded
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// timeNow is the wall clock for object keys.
var timeNow = time.Now
