package handlers

import "github.com/gin-gonic/gin"

// Register mounts every API endpoint on g (normally the versioned base path).
func (h *Handlers) Register(g gin.IRoutes) {
	// Feed
	g.GET("/feed/home", h.HomeFeed)
	g.GET("/feed/explore", h.ExploreFeed)

	// Posts and engagement
	g.POST("/posts", h.CreatePost)
	g.GET("/posts/:id", h.GetPost)
	g.DELETE("/posts/:id", h.DeletePost)
	g.POST("/posts/:id/like", h.LikePost)
	g.DELETE("/posts/:id/like", h.UnlikePost)
	g.GET("/posts/:id/comments", h.ListComments)
	g.POST("/posts/:id/comments", h.AddComment)
	g.DELETE("/comments/:id", h.DeleteComment)

	// Stories
	g.GET("/stories", h.ListStories)
	g.POST("/stories", h.CreateStory)
	g.POST("/stories/:id/views", h.ViewStory)
	g.GET("/stories/:id/viewers", h.StoryViewers)

	// Profiles and graph ("me" is resolved by the handlers)
	g.GET("/profiles/me", h.GetMyProfile)
	g.PUT("/profiles/me", h.UpdateMyProfile)
	g.GET("/profiles/:id", h.GetProfile)
	g.PUT("/profiles/:id", h.UpdateProfile)
	g.GET("/profiles/:id/followers", h.ListFollowers)
	g.GET("/profiles/:id/following", h.ListFollowing)
	g.GET("/profiles/:id/posts", h.ListUserPosts)
	g.POST("/profiles/:id/follow", h.Follow)
	g.DELETE("/profiles/:id/follow", h.Unfollow)
	g.GET("/search/profiles", h.SearchProfiles)

	// Notifications
	g.GET("/notifications", h.ListNotifications)
	g.GET("/notifications/unread", h.UnreadNotifications)
	g.POST("/notifications/:id/read", h.MarkNotificationRead)

	// Direct messages
	g.GET("/conversations", h.ListConversations)
	g.POST("/conversations", h.StartConversation)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.POST("/conversations/:id/messages", h.SendMessage)
}
