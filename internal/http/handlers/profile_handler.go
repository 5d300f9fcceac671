// Profile and social graph HTTP handlers.
//
//   - GET    /profiles/me
//   - PUT    /profiles/me
//   - GET    /profiles/{id}             ({id} may be "me")
//   - PUT    /profiles/{id}             (own profile only)
//   - GET    /profiles/{id}/followers
//   - GET    /profiles/{id}/following
//   - GET    /profiles/{id}/posts
//   - POST   /profiles/{id}/follow
//   - DELETE /profiles/{id}/follow
//   - GET    /search/profiles?q=
//
// Profiles are provisioned on first access to "me", since identities are
// issued by an external auth platform.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/utils"
)

// meAlias addresses the caller's own profile.
const meAlias = "me"

// UpdateProfileRequest is the JSON payload for editing the caller's profile.
// Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Username  *string `json:"username" example:"ada.l"`
	FullName  *string `json:"full_name" example:"Ada Lovelace"`
	Bio       *string `json:"bio" example:"analyst"`
	AvatarURL *string `json:"avatar_url" example:"https://cdn.example.com/a/ada.png"`
}

// ProfileResponse is a profile with counters and, for a signed-in viewer,
// whether they follow it.
type ProfileResponse struct {
	domain.ProfileView
	FollowedByViewer *bool `json:"followed_by_viewer,omitempty"`
}

// ProfilesResponse lists profile snapshots.
type ProfilesResponse struct {
	Profiles []domain.ProfileSnapshot `json:"profiles"`
}

// profileID resolves the {id} path parameter, expanding "me". It aborts
// with 401 when "me" is used anonymously.
func profileID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == meAlias {
		return requireUser(c)
	}
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "profile id required")
		return "", false
	}
	return id, true
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get a profile
// @Description Returns the profile with follower, following and post counts. Use "me" for the caller.
// @Tags        Profiles
// @Produce     json
// @Param       X-User-ID  header  string  false "Viewer identity"
// @Param       id         path    string  true  "Profile ID or 'me'"
// @Success     200  {object} handlers.ProfileResponse
// @Failure     404  {object} handlers.ErrorResponse "Profile not found"
// @Router      /profiles/{id} [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	id, valid := profileID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	viewer := userID(c)

	if id == viewer {
		if _, err := h.svc.Profiles.Ensure(ctx, id, ""); err != nil {
			failErr(c, err)
			return
		}
	}
	pv, err := h.svc.Profiles.Get(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	resp := ProfileResponse{ProfileView: *pv}
	if viewer != "" && viewer != id {
		if following, ferr := h.svc.Graph.IsFollowing(ctx, viewer, id); ferr == nil {
			resp.FollowedByViewer = &following
		}
	}
	ok(c, http.StatusOK, resp)
}

// asMe pins the {id} parameter to "me" for the static /profiles/me routes.
func asMe(c *gin.Context) {
	c.Params = append(c.Params, gin.Param{Key: "id", Value: meAlias})
}

// GetMyProfile godoc
// @ID          getMyProfile
// @Summary     Get the caller's profile
// @Description Provisions the profile on first access, then returns it with its counts.
// @Tags        Profiles
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller identity"
// @Success     200  {object} handlers.ProfileResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Router      /profiles/me [get]
func (h *Handlers) GetMyProfile(c *gin.Context) {
	asMe(c)
	h.GetProfile(c)
}

// UpdateMyProfile godoc
// @ID          updateMyProfile
// @Summary     Update the caller's profile
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller identity"
// @Param       body       body    handlers.UpdateProfileRequest  true  "Fields to change"
// @Success     200  {object} domain.Profile
// @Failure     400  {object} handlers.ErrorResponse "Invalid username or too long"
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     409  {object} handlers.ErrorResponse "Username taken"
// @Router      /profiles/me [put]
func (h *Handlers) UpdateMyProfile(c *gin.Context) {
	asMe(c)
	h.UpdateProfile(c)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update own profile
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller identity"
// @Param       id         path    string  true  "'me' or the caller's own ID"
// @Param       body       body    handlers.UpdateProfileRequest  true  "Fields to change"
// @Success     200  {object} domain.Profile
// @Failure     400  {object} handlers.ErrorResponse "Invalid username or too long"
// @Failure     403  {object} handlers.ErrorResponse "Not your profile"
// @Failure     409  {object} handlers.ErrorResponse "Username taken"
// @Router      /profiles/{id} [put]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	if id := c.Param("id"); id != meAlias && id != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only your own profile can be edited")
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.svc.Profiles.Ensure(ctx, uid, ""); err != nil {
		failErr(c, err)
		return
	}
	p, err := h.svc.Profiles.Update(ctx, uid, services.ProfilePatch{
		Username:  req.Username,
		FullName:  req.FullName,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// ListFollowers godoc
// @ID          listFollowers
// @Summary     Who follows a profile
// @Tags        Graph
// @Produce     json
// @Param       id  path  string  true  "Profile ID or 'me'"
// @Success     200  {object} handlers.ProfilesResponse
// @Router      /profiles/{id}/followers [get]
func (h *Handlers) ListFollowers(c *gin.Context) {
	id, valid := profileID(c)
	if !valid {
		return
	}
	list, err := h.svc.Graph.Followers(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, profilesResponse(list))
}

// ListFollowing godoc
// @ID          listFollowing
// @Summary     Who a profile follows
// @Tags        Graph
// @Produce     json
// @Param       id  path  string  true  "Profile ID or 'me'"
// @Success     200  {object} handlers.ProfilesResponse
// @Router      /profiles/{id}/following [get]
func (h *Handlers) ListFollowing(c *gin.Context) {
	id, valid := profileID(c)
	if !valid {
		return
	}
	list, err := h.svc.Graph.Following(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, profilesResponse(list))
}

// ListUserPosts godoc
// @ID          listUserPosts
// @Summary     A profile's posts
// @Tags        Profiles
// @Produce     json
// @Param       id         path   string  true  "Profile ID or 'me'"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.FeedResponse
// @Router      /profiles/{id}/posts [get]
func (h *Handlers) ListUserPosts(c *gin.Context) {
	id, valid := profileID(c)
	if !valid {
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.svc.Feed.UserPosts(c.Request.Context(), id, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, feedResponse(items, page, pageSize, total))
}

// Follow godoc
// @ID          follow
// @Summary     Follow a profile
// @Description Idempotent. Following yourself is rejected.
// @Tags        Graph
// @Param       X-User-ID  header  string  true  "Follower identity"
// @Param       id         path    string  true  "Profile to follow"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Self-follow"
// @Failure     404  {object} handlers.ErrorResponse "Profile not found"
// @Router      /profiles/{id}/follow [post]
func (h *Handlers) Follow(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := profileID(c)
	if !valid {
		return
	}
	if _, err := h.svc.Graph.Follow(c.Request.Context(), uid, id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Unfollow godoc
// @ID          unfollow
// @Summary     Unfollow a profile
// @Description Idempotent: unfollowing someone you do not follow succeeds.
// @Tags        Graph
// @Param       X-User-ID  header  string  true  "Follower identity"
// @Param       id         path    string  true  "Profile to unfollow"
// @Success     204  {string} string "No Content"
// @Router      /profiles/{id}/follow [delete]
func (h *Handlers) Unfollow(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	id, valid := profileID(c)
	if !valid {
		return
	}
	if err := h.svc.Graph.Unfollow(c.Request.Context(), uid, id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SearchProfiles godoc
// @ID          searchProfiles
// @Summary     Search profiles by username
// @Description Case-insensitive substring match. A blank query returns no results.
// @Tags        Profiles
// @Produce     json
// @Param       q      query  string  true  "Username fragment"
// @Param       limit  query  int     false "Max results"  minimum(1) maximum(20) default(20)
// @Success     200  {object} handlers.ProfilesResponse
// @Router      /search/profiles [get]
func (h *Handlers) SearchProfiles(c *gin.Context) {
	limit := utils.IntOr(c.Query("limit"), services.DefaultSearchLimit)
	list, err := h.svc.Profiles.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, profilesResponse(list))
}

func profilesResponse(list []domain.ProfileSnapshot) ProfilesResponse {
	if list == nil {
		list = []domain.ProfileSnapshot{}
	}
	return ProfilesResponse{Profiles: list}
}
