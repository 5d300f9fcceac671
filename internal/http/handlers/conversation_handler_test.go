package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
)

func startConversation(t *testing.T, f *fixture, from, to string) domain.Conversation {
	t.Helper()
	w := f.do(t, http.MethodPost, "/conversations", from, StartConversationRequest{UserID: to})
	wantStatus(t, w, http.StatusOK)
	var conv domain.Conversation
	decode(t, w, &conv)
	return conv
}

func TestConversations_StartIsFindOrCreate(t *testing.T) {
	f := newFixture(t, Options{})
	f.profile(t, "a", "alice")
	f.profile(t, "b", "bob")

	c1 := startConversation(t, f, "a", "b")
	c2 := startConversation(t, f, "b", "a")
	assert.Equal(t, c1.ID, c2.ID, "expected one conversation")

	wantCode(t, f.do(t, http.MethodPost, "/conversations", "a", StartConversationRequest{UserID: "a"}),
		http.StatusBadRequest, ErrCodeBadRequest)
	wantCode(t, f.do(t, http.MethodPost, "/conversations", "a", StartConversationRequest{UserID: "ghost"}),
		http.StatusNotFound, ErrCodeNotFound)
}

func TestConversations_SendReplayAndList(t *testing.T) {
	f := newFixture(t, Options{})
	f.profile(t, "a", "alice")
	f.profile(t, "b", "bob")
	conv := startConversation(t, f, "a", "b")
	path := "/conversations/" + conv.ID + "/messages"

	w := f.do(t, http.MethodPost, path, "a", SendMessageRequest{Content: "hi\r\n\r\n\r\n\r\nthere"}, middleware.HeaderIdempotencyKey, "send-1")
	wantStatus(t, w, http.StatusCreated)
	var m domain.DirectMessage
	decode(t, w, &m)
	assert.Equal(t, "hi\n\nthere", m.Content)

	w = f.do(t, http.MethodPost, path, "a", SendMessageRequest{Content: "hi"}, middleware.HeaderIdempotencyKey, "send-1")
	wantStatus(t, w, http.StatusOK)
	assert.Equal(t, "true", w.Header().Get("Idempotency-Replayed"))
	var again domain.DirectMessage
	decode(t, w, &again)
	assert.Equal(t, m.ID, again.ID, "replay returns the original message")

	w = f.do(t, http.MethodGet, path, "b", nil)
	wantStatus(t, w, http.StatusOK)
	var page MessagesResponse
	decode(t, w, &page)
	assert.EqualValues(t, 1, page.Pagination.Total)
	assert.Len(t, page.Messages, 1)
	etag := w.Header().Get("ETag")
	wantStatus(t, f.do(t, http.MethodGet, path, "b", nil, "If-None-Match", etag), http.StatusNotModified)

	w = f.do(t, http.MethodGet, "/conversations", "b", nil)
	wantStatus(t, w, http.StatusOK)
	var inbox ConversationsResponse
	decode(t, w, &inbox)
	require.Len(t, inbox.Conversations, 1)
	sum := inbox.Conversations[0]
	require.NotNil(t, sum.LastMessage)
	assert.Equal(t, m.ID, sum.LastMessage.ID)
	require.Len(t, sum.Participants, 1)
	assert.Equal(t, "alice", sum.Participants[0].Username)
}

func TestConversations_OutsiderIsForbidden(t *testing.T) {
	f := newFixture(t, Options{})
	f.profile(t, "a", "alice")
	f.profile(t, "b", "bob")
	conv := startConversation(t, f, "a", "b")
	path := "/conversations/" + conv.ID + "/messages"

	wantCode(t, f.do(t, http.MethodGet, path, "c", nil), http.StatusForbidden, ErrCodeForbidden)
	wantCode(t, f.do(t, http.MethodPost, path, "c", SendMessageRequest{Content: "let me in"}), http.StatusForbidden, ErrCodeForbidden)
	wantCode(t, f.do(t, http.MethodGet, "/conversations", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}
