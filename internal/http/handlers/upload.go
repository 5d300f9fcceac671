package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// upload is a multipart file part ready to hand to a service.
type upload struct {
	file        multipart.File
	filename    string
	contentType string
	size        int64
}

func (u *upload) Close() error { return u.file.Close() }

// isMultipart reports whether the request carries a multipart form.
func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// openUpload opens the named form file. When the part carries no usable
// Content-Type, the first 512 bytes are sniffed. On failure the response
// has already been written and ok is false.
func (h *Handlers) openUpload(c *gin.Context, field string) (u *upload, valid bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		if isBodyTooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "upload exceeds size limit")
			return nil, false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field '"+field+"' required")
		return nil, false
	}
	if limit := h.opts.MaxUploadBytes; limit > 0 && fh.Size > limit {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "upload exceeds size limit")
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return nil, false
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		var head [512]byte
		n, _ := io.ReadFull(f, head[:])
		ct = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
			return nil, false
		}
	}
	return &upload{file: f, filename: fh.Filename, contentType: ct, size: fh.Size}, true
}
