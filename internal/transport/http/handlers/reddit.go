package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/karanb192/reddit-mcp-buddy/internal/reddit"
)

// RedditHandler serves the gateway's query endpoints.
type RedditHandler struct {
	service *reddit.Service
}

// NewRedditHandler constructs the handler.
func NewRedditHandler(service *reddit.Service) *RedditHandler {
	return &RedditHandler{service: service}
}

// RegisterRoutes attaches the query endpoints to the group.
func (h *RedditHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/r/:subreddit/posts", h.Posts)
	group.GET("/r/:subreddit/about", h.About)
	group.GET("/r/:subreddit/comments/:postID", h.Comments)
	group.GET("/search", h.Search)
	group.GET("/u/:username", h.UserOverview)
}

// Posts serves a subreddit listing.
func (h *RedditHandler) Posts(c *gin.Context) {
	posts, err := h.service.Posts(c.Request.Context(), reddit.PostsInput{
		Subreddit: c.Param("subreddit"),
		Sort:      c.Query("sort"),
		TimeRange: c.Query("time"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

// About serves subreddit metadata.
func (h *RedditHandler) About(c *gin.Context) {
	info, err := h.service.About(c.Request.Context(), c.Param("subreddit"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Comments serves a post with its comment tree.
func (h *RedditHandler) Comments(c *gin.Context) {
	result, err := h.service.Comments(c.Request.Context(), reddit.CommentsInput{
		Subreddit: c.Param("subreddit"),
		PostID:    c.Param("postID"),
		Sort:      c.Query("sort"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Search serves sitewide or subreddit-restricted search.
func (h *RedditHandler) Search(c *gin.Context) {
	posts, err := h.service.Search(c.Request.Context(), reddit.SearchInput{
		Query:     c.Query("q"),
		Subreddit: c.Query("subreddit"),
		Sort:      c.Query("sort"),
		TimeRange: c.Query("time"),
		Limit:     queryInt(c, "limit"),
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

// UserOverview serves a user's profile and recent activity.
func (h *RedditHandler) UserOverview(c *gin.Context) {
	result, err := h.service.UserOverview(c.Request.Context(), reddit.UserInput{
		Username: c.Param("username"),
		Limit:    queryInt(c, "limit"),
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
