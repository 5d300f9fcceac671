// Package utils holds query-string helpers shared by the HTTP handlers.
package utils

import (
	"cmp"
	"strconv"
	"strings"
)

// Paging bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// ParsePage reads raw page and page_size values. Missing or malformed
// values fall back to page 1 and DefaultPageSize; size is capped at
// MaxPageSize.
func ParsePage(number, size string) Page {
	return Page{
		Number: max(IntOr(number, 1), 1),
		Size:   Bound(IntOr(size, DefaultPageSize), 1, MaxPageSize),
	}
}

// IntOr parses s as a base-10 int, or returns fallback. Surrounding
// whitespace is rejected, not trimmed.
func IntOr(s string, fallback int) int {
	if s == "" || strings.TrimSpace(s) != s {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Bound limits v to the closed range [lo, hi].
func Bound[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
