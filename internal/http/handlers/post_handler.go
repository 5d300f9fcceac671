// Post and engagement HTTP handlers.
//
//   - POST   /posts                 (create from URL or multipart image)
//   - DELETE /posts/{id}            (owner only)
//   - POST   /posts/{id}/like       (idempotent)
//   - DELETE /posts/{id}/like       (idempotent)
//   - GET    /posts/{id}/comments
//   - POST   /posts/{id}/comments   (Idempotency-Key replay)
//   - DELETE /comments/{id}         (author only)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
)

//
// DTOs
//

// CreatePostRequest is the JSON payload for creating a post from an already
// hosted image.
type CreatePostRequest struct {
	ImageURL string `json:"image_url" binding:"required" example:"https://cdn.example.com/p/1.jpg"`
	Caption  string `json:"caption" example:"sunset over the harbour"`
}

// AddCommentRequest is the JSON payload for commenting on a post.
type AddCommentRequest struct {
	Content string `json:"content" binding:"required" example:"great shot!"`
}

// CommentsResponse lists a post's comments, oldest first.
type CommentsResponse struct {
	Comments []domain.CommentView `json:"comments"`
}

//
// Posts
//

// CreatePost godoc
// @ID          createPost
// @Summary     Create a post
// @Description Accepts either JSON {image_url, caption} or a multipart form with an `image` file and optional `caption`.
// @Tags        Posts
// @Accept      json,mpfd
// @Produce     json
//
// @Param       X-User-ID  header    string  true  "Author identity"
// @Param       body       body      handlers.CreatePostRequest  false  "JSON payload"
// @Param       image      formData  file    false "Image file (multipart)"
// @Param       caption    formData  string  false "Caption (multipart)"
//
// @Success     201  {object}  domain.Post
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Failure     413  {object}  handlers.ErrorResponse "Upload too large"
// @Failure     503  {object}  handlers.ErrorResponse "Store unavailable"
// @Router      /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	var (
		p   *domain.Post
		err error
	)
	if isMultipart(c) {
		up, valid := h.openUpload(c, "image")
		if !valid {
			return
		}
		defer up.Close()
		p, err = h.svc.Posts.Upload(ctx, uid, up.filename, up.contentType, up.file, up.size, c.PostForm("caption"))
	} else {
		var req CreatePostRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image_url required")
			return
		}
		p, err = h.svc.Posts.Create(ctx, uid, req.ImageURL, req.Caption)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Delete a post
// @Description Removes the post with its likes and comments. Only the author may delete it.
// @Tags        Posts
// @Param       X-User-ID  header  string  true  "Author identity"
// @Param       id         path    string  true  "Post ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Not the author"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Router      /posts/{id} [delete]
func (h *Handlers) DeletePost(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathUUID(c, "id", "post")
	if !valid {
		return
	}
	if err := h.svc.Posts.Delete(c.Request.Context(), id, uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

//
// Likes
//

// LikePost godoc
// @ID          likePost
// @Summary     Like a post
// @Description Idempotent: liking an already liked post succeeds without a second receipt.
// @Tags        Engagement
// @Param       X-User-ID  header  string  true  "Liker identity"
// @Param       id         path    string  true  "Post ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Router      /posts/{id}/like [post]
func (h *Handlers) LikePost(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathUUID(c, "id", "post")
	if !valid {
		return
	}
	if _, err := h.svc.Engagement.Like(c.Request.Context(), id, uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UnlikePost godoc
// @ID          unlikePost
// @Summary     Remove a like
// @Description Idempotent: removing a like that does not exist succeeds.
// @Tags        Engagement
// @Param       X-User-ID  header  string  true  "Liker identity"
// @Param       id         path    string  true  "Post ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Router      /posts/{id}/like [delete]
func (h *Handlers) UnlikePost(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathUUID(c, "id", "post")
	if !valid {
		return
	}
	if err := h.svc.Engagement.Unlike(c.Request.Context(), id, uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

//
// Comments
//

// ListComments godoc
// @ID          listComments
// @Summary     List a post's comments
// @Tags        Engagement
// @Produce     json
// @Param       id  path  string  true  "Post ID (UUID)"  format(uuid)
// @Success     200  {object} handlers.CommentsResponse
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Router      /posts/{id}/comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	id, valid := pathUUID(c, "id", "post")
	if !valid {
		return
	}
	items, err := h.svc.Engagement.ListComments(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.CommentView{}
	}
	ok(c, http.StatusOK, CommentsResponse{Comments: items})
}

// AddComment godoc
// @ID          addComment
// @Summary     Comment on a post
// @Description Supports idempotency via the Idempotency-Key header (same key returns the first comment).
// @Tags        Engagement
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Author identity"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       id               path    string  true  "Post ID (UUID)"  format(uuid)
// @Param       body             body    handlers.AddCommentRequest  true  "Comment payload"
//
// @Success     201  {object}  domain.Comment
// @Success     200  {object}  domain.Comment "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Post not found"
// @Router      /posts/{id}/comments [post]
func (h *Handlers) AddComment(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	postID, valid := pathUUID(c, "id", "post")
	if !valid {
		return
	}
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	ctx := c.Request.Context()

	key, prevID := h.replayed(c, uid, postID)
	if prevID != "" {
		if prev, err := h.svc.Engagement.Comment(ctx, prevID); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	cm, err := h.svc.Engagement.AddComment(ctx, postID, uid, req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, uid, postID, key, cm.ID, http.StatusCreated)
	ok(c, http.StatusCreated, cm)
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete a comment
// @Tags        Engagement
// @Param       X-User-ID  header  string  true  "Author identity"
// @Param       id         path    string  true  "Comment ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Not the author"
// @Failure     404  {object} handlers.ErrorResponse "Comment not found"
// @Router      /comments/{id} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathUUID(c, "id", "comment")
	if !valid {
		return
	}
	if err := h.svc.Engagement.DeleteComment(c.Request.Context(), id, uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
