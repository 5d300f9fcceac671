// Feed HTTP handlers.
//
//   - GET /feed/home      (posts of the viewer and everyone they follow)
//   - GET /feed/explore   (engagement-ranked recent posts)
//   - GET /posts/{id}     (one enriched post)
//
// Both feeds carry a weak ETag derived from the in-process change counters,
// so unchanged aggregations answer 304 without touching the database.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// FeedResponse wraps a page of feed items and pagination information.
type FeedResponse struct {
	Items      []domain.FeedItem `json:"items"`
	Pagination Pagination        `json:"pagination"`
}

func feedResponse(items []domain.FeedItem, page, pageSize int, total int64) FeedResponse {
	if items == nil {
		items = []domain.FeedItem{}
	}
	return FeedResponse{Items: items, Pagination: newPagination(page, pageSize, total)}
}

// HomeFeed godoc
// @ID          homeFeed
// @Summary     Home feed
// @Description Posts by the viewer and everyone they follow, newest first.
// @Description Anonymous callers receive an empty page. Supports weak ETag via If-None-Match.
// @Tags        Feed
// @Produce     json
//
// @Param       X-User-ID      header  string  false "Viewer identity"             example(3f2a91bc-0c5e-4c43-9d8e-2b6f5e7d1a10)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.FeedResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /feed/home [get]
func (h *Handlers) HomeFeed(c *gin.Context) {
	viewer := userID(c)
	page, pageSize := clampPagination(c)

	if v := h.opts.Versions; v != nil {
		etag := h.versionTag("home", viewer, v.Content(), v.Scope(viewer), page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.svc.Feed.HomeFeed(c.Request.Context(), viewer, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, feedResponse(items, page, pageSize, total))
}

// ExploreFeed godoc
// @ID          exploreFeed
// @Summary     Explore feed
// @Description Recent posts ranked by likes, then comments, then recency.
// @Tags        Feed
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.FeedResponse
// @Success     304  {string} string "Not Modified"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /feed/explore [get]
func (h *Handlers) ExploreFeed(c *gin.Context) {
	page, pageSize := clampPagination(c)

	if v := h.opts.Versions; v != nil {
		if notModified(c, h.versionTag("explore", v.Content(), page, pageSize)) {
			return
		}
	}

	items, total, err := h.svc.Feed.ExploreFeed(c.Request.Context(), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, feedResponse(items, page, pageSize, total))
}

// GetPost godoc
// @ID          getPost
// @Summary     Get a post
// @Tags        Posts
// @Produce     json
// @Param       id  path  string  true  "Post ID (UUID)"  format(uuid)
// @Success     200  {object} domain.FeedItem
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Router      /posts/{id} [get]
func (h *Handlers) GetPost(c *gin.Context) {
	id, valid := pathUUID(c, "id", "post")
	if !valid {
		return
	}
	item, err := h.svc.Feed.GetPost(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, item)
}
