// Story HTTP handlers.
//
//   - GET  /stories               (active stories, newest first)
//   - POST /stories               (create from URL or multipart media)
//   - POST /stories/{id}/views    (idempotent view receipt)
//   - GET  /stories/{id}/viewers  (owner only)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateStoryRequest is the JSON payload for a story whose media is already
// hosted.
type CreateStoryRequest struct {
	MediaURL  string `json:"media_url" binding:"required" example:"https://cdn.example.com/s/1.mp4"`
	MediaType string `json:"media_type" binding:"required" enums:"image,video" example:"video"`
}

// StoriesResponse lists the active stories.
type StoriesResponse struct {
	Stories []domain.StoryItem `json:"stories"`
}

// StoryViewersResponse lists a story's viewers with their count.
type StoryViewersResponse struct {
	Viewers []domain.StoryViewer `json:"viewers"`
	Count   int64                `json:"count"`
}

// ListStories godoc
// @ID          listStories
// @Summary     Active stories
// @Description Stories whose expiry is still in the future, newest first. `viewers` is present only on the caller's own stories.
// @Tags        Stories
// @Produce     json
// @Param       X-User-ID      header  string  false "Viewer identity"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Success     200  {object} handlers.StoriesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /stories [get]
func (h *Handlers) ListStories(c *gin.Context) {
	uid := userID(c)
	items, err := h.svc.Stories.ActiveStories(c.Request.Context(), h.now().UTC(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.StoryItem{}
	}

	// Expiry changes the result without an event, so the tag also carries
	// the size of the active set and its soonest expiry.
	if v := h.opts.Versions; v != nil {
		var soonest int64
		for _, it := range items {
			if ts := it.ExpiresAt.UnixNano(); soonest == 0 || ts < soonest {
				soonest = ts
			}
		}
		if notModified(c, h.versionTag("stories", uid, v.Stories(), len(items), soonest)) {
			return
		}
	}
	ok(c, http.StatusOK, StoriesResponse{Stories: items})
}

// CreateStory godoc
// @ID          createStory
// @Summary     Publish a story
// @Description Accepts JSON {media_url, media_type} or a multipart form with a `media` file.
// @Tags        Stories
// @Accept      json,mpfd
// @Produce     json
// @Param       X-User-ID  header    string  true  "Owner identity"
// @Param       body       body      handlers.CreateStoryRequest  false  "JSON payload"
// @Param       media      formData  file    false "Image or video (multipart)"
// @Success     201  {object}  domain.Story
// @Failure     400  {object}  handlers.ErrorResponse "Bad request or unsupported media"
// @Failure     413  {object}  handlers.ErrorResponse "Upload too large"
// @Router      /stories [post]
func (h *Handlers) CreateStory(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	var (
		st  *domain.Story
		err error
	)
	if isMultipart(c) {
		up, valid := h.openUpload(c, "media")
		if !valid {
			return
		}
		defer up.Close()
		st, err = h.svc.Stories.Upload(ctx, uid, up.filename, up.contentType, up.file, up.size)
	} else {
		var req CreateStoryRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "media_url and media_type required")
			return
		}
		st, err = h.svc.Stories.Create(ctx, uid, req.MediaURL, req.MediaType)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, st)
}

// ViewStory godoc
// @ID          viewStory
// @Summary     Record a story view
// @Description Idempotent: repeated views return the first receipt.
// @Tags        Stories
// @Produce     json
// @Param       X-User-ID  header  string  true  "Viewer identity"
// @Param       id         path    string  true  "Story ID (UUID)"  format(uuid)
// @Success     200  {object} domain.StoryView
// @Failure     404  {object} handlers.ErrorResponse "Story not found or expired"
// @Router      /stories/{id}/views [post]
func (h *Handlers) ViewStory(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathUUID(c, "id", "story")
	if !valid {
		return
	}
	v, err := h.svc.Stories.RecordView(c.Request.Context(), id, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// StoryViewers godoc
// @ID          storyViewers
// @Summary     List a story's viewers
// @Tags        Stories
// @Produce     json
// @Param       X-User-ID  header  string  true  "Owner identity"
// @Param       id         path    string  true  "Story ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.StoryViewersResponse
// @Failure     403  {object} handlers.ErrorResponse "Not the owner"
// @Failure     404  {object} handlers.ErrorResponse "Story not found"
// @Router      /stories/{id}/viewers [get]
func (h *Handlers) StoryViewers(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathUUID(c, "id", "story")
	if !valid {
		return
	}
	viewers, err := h.svc.Stories.Viewers(c.Request.Context(), id, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	if viewers == nil {
		viewers = []domain.StoryViewer{}
	}
	n, err := h.svc.Stories.ViewerCountFor(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StoryViewersResponse{Viewers: viewers, Count: n})
}
