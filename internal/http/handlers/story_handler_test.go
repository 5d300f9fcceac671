package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func createStory(t *testing.T, f *fixture, owner string) domain.Story {
	t.Helper()
	w := f.do(t, http.MethodPost, "/stories", owner, CreateStoryRequest{MediaURL: "https://cdn.test/s/1.mp4", MediaType: "video"})
	wantStatus(t, w, http.StatusCreated)
	var st domain.Story
	decode(t, w, &st)
	return st
}

func listStories(t *testing.T, f *fixture, user string, headers ...string) (*httptest.ResponseRecorder, StoriesResponse) {
	t.Helper()
	w := f.do(t, http.MethodGet, "/stories", user, nil, headers...)
	var resp StoriesResponse
	if w.Code == http.StatusOK {
		decode(t, w, &resp)
	}
	return w, resp
}

func TestStories_CreateListAndETag(t *testing.T) {
	f := newFixture(t, Options{})
	f.profile(t, "owner", "owner")
	st := createStory(t, f, "owner")
	assert.True(t, st.ExpiresAt.After(st.CreatedAt))

	w, resp := listStories(t, f, "")
	wantStatus(t, w, http.StatusOK)
	require.Len(t, resp.Stories, 1)
	assert.Equal(t, st.ID, resp.Stories[0].ID)
	assert.Equal(t, "owner", resp.Stories[0].Author.Username)

	etag := w.Header().Get("ETag")
	w, _ = listStories(t, f, "", "If-None-Match", etag)
	wantStatus(t, w, http.StatusNotModified)

	// A view invalidates the tag.
	wantStatus(t, f.do(t, http.MethodPost, "/stories/"+st.ID+"/views", "viewer", nil), http.StatusOK)
	w, _ = listStories(t, f, "", "If-None-Match", etag)
	wantStatus(t, w, http.StatusOK)

	// The tag is per caller: the owner's body differs from an anonymous one.
	w, _ = listStories(t, f, "owner", "If-None-Match", w.Header().Get("ETag"))
	wantStatus(t, w, http.StatusOK)
}

func TestStories_ViewerCountOnlyForOwner(t *testing.T) {
	f := newFixture(t, Options{})
	mine := createStory(t, f, "owner")
	theirs := createStory(t, f, "viewer")
	wantStatus(t, f.do(t, http.MethodPost, "/stories/"+mine.ID+"/views", "viewer", nil), http.StatusOK)

	byID := func(resp StoriesResponse) map[string]domain.StoryItem {
		m := map[string]domain.StoryItem{}
		for _, it := range resp.Stories {
			m[it.ID] = it
		}
		return m
	}

	w, resp := listStories(t, f, "owner")
	wantStatus(t, w, http.StatusOK)
	items := byID(resp)
	require.NotNil(t, items[mine.ID].Viewers)
	assert.EqualValues(t, 1, *items[mine.ID].Viewers)
	assert.Nil(t, items[theirs.ID].Viewers, "count on someone else's story")

	for _, caller := range []string{"", "stranger"} {
		w, resp := listStories(t, f, caller)
		wantStatus(t, w, http.StatusOK)
		require.Len(t, resp.Stories, 2)
		assert.NotContains(t, w.Body.String(), `"viewers"`, "caller %q", caller)
	}

	// The viewer sees the count of its own story only.
	_, resp = listStories(t, f, "viewer")
	items = byID(resp)
	assert.Nil(t, items[mine.ID].Viewers)
	require.NotNil(t, items[theirs.ID].Viewers)
	assert.Zero(t, *items[theirs.ID].Viewers)
}

func TestStories_CreateValidation(t *testing.T) {
	f := newFixture(t, Options{})
	wantCode(t, f.do(t, http.MethodPost, "/stories", "", CreateStoryRequest{MediaURL: "u", MediaType: "image"}),
		http.StatusUnauthorized, ErrCodeUnauthorized)
	wantCode(t, f.do(t, http.MethodPost, "/stories", "a", CreateStoryRequest{MediaURL: "https://x/y.gif", MediaType: "gif"}),
		http.StatusBadRequest, ErrCodeUnsupportedMedia)
	wantCode(t, f.do(t, http.MethodPost, "/stories", "a", map[string]string{"media_type": "image"}),
		http.StatusBadRequest, ErrCodeBadRequest)
}

func TestStories_MultipartUpload(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 1 << 20})
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, multipartRequest(t, "/stories", "a", "media", "clip.png", pngHeader, nil))
	wantStatus(t, w, http.StatusCreated)

	var st domain.Story
	decode(t, w, &st)
	assert.Equal(t, domain.MediaImage, st.MediaType)
	assert.True(t, strings.HasPrefix(st.MediaURL, "https://cdn.test/stories/a-"), st.MediaURL)
}

func TestStories_ViewIdempotentAndViewersOwnerOnly(t *testing.T) {
	f := newFixture(t, Options{})
	f.profile(t, "viewer", "viewer")
	st := createStory(t, f, "owner")
	path := "/stories/" + st.ID

	var first, second domain.StoryView
	w := f.do(t, http.MethodPost, path+"/views", "viewer", nil)
	wantStatus(t, w, http.StatusOK)
	decode(t, w, &first)
	w = f.do(t, http.MethodPost, path+"/views", "viewer", nil)
	wantStatus(t, w, http.StatusOK)
	decode(t, w, &second)
	assert.Equal(t, first.ID, second.ID, "repeat view produced a new receipt")

	w = f.do(t, http.MethodGet, path+"/viewers", "owner", nil)
	wantStatus(t, w, http.StatusOK)
	var viewers StoryViewersResponse
	decode(t, w, &viewers)
	assert.EqualValues(t, 1, viewers.Count, "repeat view counted twice")
	require.Len(t, viewers.Viewers, 1)
	assert.Equal(t, "viewer", viewers.Viewers[0].Viewer.Username)

	wantCode(t, f.do(t, http.MethodGet, path+"/viewers", "viewer", nil), http.StatusForbidden, ErrCodeForbidden)
	wantCode(t, f.do(t, http.MethodPost, "/stories/"+uuid.NewString()+"/views", "viewer", nil), http.StatusNotFound, ErrCodeNotFound)
}
