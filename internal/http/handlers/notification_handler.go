// Notification HTTP handlers.
//
//   - GET  /notifications             (paginated, ETag support)
//   - GET  /notifications/unread      (unread count)
//   - POST /notifications/{id}/read
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// NotificationsResponse wraps a page of notifications.
type NotificationsResponse struct {
	Notifications []domain.NotificationView `json:"notifications"`
	Pagination    Pagination                `json:"pagination"`
}

// UnreadResponse carries the unread notification count.
type UnreadResponse struct {
	Unread int64 `json:"unread"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications (paginated)
// @Description Newest first, each with its actor. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Notifications
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "Recipient identity"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.NotificationsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.opts.DB; db != nil {
		count, unread, latest, err := repo.NotificationsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"notifications:%s:%d:%d:%d:%d:%d"`, uid, count, unread, ts, page, pageSize)
			if notModified(c, etag) {
				return
			}
		}
	}

	items, total, err := h.svc.Notifications.List(ctx, uid, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.NotificationView{}
	}
	ok(c, http.StatusOK, NotificationsResponse{
		Notifications: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}

// UnreadNotifications godoc
// @ID          unreadNotifications
// @Summary     Count unread notifications
// @Tags        Notifications
// @Produce     json
// @Param       X-User-ID  header  string  true  "Recipient identity"
// @Success     200  {object} handlers.UnreadResponse
// @Router      /notifications/unread [get]
func (h *Handlers) UnreadNotifications(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	n, err := h.svc.Notifications.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadResponse{Unread: n})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification as read
// @Tags        Notifications
// @Param       X-User-ID  header  string  true  "Recipient identity"
// @Param       id         path    string  true  "Notification ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Notification not found"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := pathUUID(c, "id", "notification")
	if !valid {
		return
	}
	if err := h.svc.Notifications.MarkRead(c.Request.Context(), id, uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
