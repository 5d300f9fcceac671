// Direct message HTTP handlers.
//
//   - GET  /conversations                  (inbox, most recently active first)
//   - POST /conversations                  (find or start a 1:1 conversation)
//   - GET  /conversations/{id}/messages    (paginated, ETag support)
//   - POST /conversations/{id}/messages    (Idempotency-Key replay)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// send exists for (user, conversation, key), the handler returns that
// recorded message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

//
// DTOs
//

// StartConversationRequest names the other participant.
type StartConversationRequest struct {
	UserID string `json:"user_id" binding:"required" example:"9b1c0f7e-2d3a-4e5f-8a6b-7c8d9e0f1a2b"`
}

// SendMessageRequest is the JSON payload for sending a direct message.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,min=1" example:"see you at 8?"`
}

// ConversationsResponse is the caller's inbox.
type ConversationsResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}

// MessagesResponse contains a page of messages and pagination metadata.
type MessagesResponse struct {
	Messages   []domain.DirectMessage `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF and collapses blank-line runs.
// Trimming and length limits are enforced by the service.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return nlCollapseRE.ReplaceAllString(s, "\n\n")
}

//
// Handlers
//

// ListConversations godoc
// @ID          listConversations
// @Summary     Inbox
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller identity"
// @Success     200  {object} handlers.ConversationsResponse
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	list, err := h.svc.Messaging.ListConversations(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	ok(c, http.StatusOK, ConversationsResponse{Conversations: list})
}

// StartConversation godoc
// @ID          startConversation
// @Summary     Start a conversation
// @Description Returns the existing 1:1 conversation with user_id, or creates it.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller identity"
// @Param       body       body    handlers.StartConversationRequest  true  "Other participant"
// @Success     200  {object} domain.Conversation
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Profile not found"
// @Router      /conversations [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id required")
		return
	}
	conv, err := h.svc.Messaging.Start(c.Request.Context(), uid, strings.TrimSpace(req.UserID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "Participant identity"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.MessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	convID, valid := pathUUID(c, "id", "conversation")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.opts.DB; db != nil {
		count, latest, err := repo.MessagesStats(ctx, db, convID)
		if err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%s:%d:%d:%d:%d"`, convID, uid, count, ts, page, pageSize)
			if notModified(c, etag) {
				return
			}
		}
	}

	items, total, err := h.svc.Messaging.ListMessages(ctx, convID, uid, page, pageSize)
	if err != nil {
		c.Writer.Header().Del("ETag")
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.DirectMessage{}
	}
	ok(c, http.StatusOK, MessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a direct message
// @Description Supports idempotency via the Idempotency-Key header (same key returns the first message).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Sender identity"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       id               path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  domain.DirectMessage
// @Success     200  {object}  domain.DirectMessage "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	convID, valid := pathUUID(c, "id", "conversation")
	if !valid {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	ctx := c.Request.Context()

	key, prevID := h.replayed(c, uid, convID)
	if prevID != "" {
		if prev, err := h.svc.Messaging.Message(ctx, prevID); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	m, err := h.svc.Messaging.Send(ctx, convID, uid, sanitizeContent(req.Content))
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, uid, convID, key, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}
