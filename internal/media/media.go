// Package media stores uploaded post images and story media. Bytes are
// opaque: the store only needs a key, a content type and a reader, and it
// returns the public URL the client will load the object from.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// Store persists a blob under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (publicURL string, err error)
}

// ObjectKey builds "<prefix>/<owner>-<unixmillis>.<ext>". The extension is
// taken from filename, lower-cased; "bin" is used when there is none.
func ObjectKey(prefix, owner, filename string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = "bin"
	}
	name := fmt.Sprintf("%s-%d.%s", owner, now.UnixMilli(), ext)
	if prefix = strings.Trim(prefix, "/"); prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// cleanKey rejects empty, absolute or parent-relative keys.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))[1:]
	if k == "" || k != strings.TrimPrefix(key, "/") || strings.HasPrefix(k, "..") {
		return "", ErrInvalidKey
	}
	return k, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
