// Package ranking orders aggregated feed items. It performs no I/O: callers
// hand it a slice and get back a new, ordered slice.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// Strategy selects how items are ordered.
type Strategy string

const (
	// Chronological orders newest first.
	Chronological Strategy = "chronological"
	// Engagement orders by likes plus comments, highest first.
	Engagement Strategy = "engagement"
)

// ErrUnknownStrategy is returned by ParseStrategy for unsupported names.
var ErrUnknownStrategy = fmt.Errorf("unknown ranking strategy")

// ParseStrategy maps a case-insensitive name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Chronological:
		return Chronological, nil
	case Engagement:
		return Engagement, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Score is the engagement score of an item: its like count plus its
// comment count.
func Score(it domain.FeedItem) int64 {
	return int64(len(it.Likes)) + it.CommentCount
}

// Rank returns a newly allocated slice ordered by strategy. The input is
// never modified.
//
// Both strategies end in (created_at desc, id desc), which makes the order
// total: the same input always produces the same output.
func Rank(items []domain.FeedItem, strategy Strategy) []domain.FeedItem {
	out := make([]domain.FeedItem, len(items))
	copy(out, items)

	switch strategy {
	case Engagement:
		sort.SliceStable(out, func(i, j int) bool {
			si, sj := Score(out[i]), Score(out[j])
			if si != sj {
				return si > sj
			}
			return newer(out[i], out[j])
		})
	default:
		sort.SliceStable(out, func(i, j int) bool { return newer(out[i], out[j]) })
	}
	return out
}

func newer(a, b domain.FeedItem) bool {
	if !a.Post.CreatedAt.Equal(b.Post.CreatedAt) {
		return a.Post.CreatedAt.After(b.Post.CreatedAt)
	}
	return a.Post.ID > b.Post.ID
}
