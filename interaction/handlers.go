package interaction

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"garden/auth"
	"garden/logging"
	"garden/realtime"
	"garden/store"
)

type InteractionModule struct {
	store  *store.Store
	broker realtime.Broker
}

func NewInteractionModule(s *store.Store, broker realtime.Broker) *InteractionModule {
	return &InteractionModule{store: s, broker: broker}
}

func (a *InteractionModule) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/posts/:id/interactions", a.interactions)
		api.POST("/posts/:id/like", a.toggleLike)
		api.POST("/posts/:id/comments", a.postComment)
		api.DELETE("/comments/:id", a.deleteComment)
		api.POST("/users/:id/block", a.blockUser)
		api.DELETE("/users/:id/block", a.unblockUser)
	}

	router.GET("/ws/posts/:id", a.socket)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

// loadView mounts a request-scoped view of a post. Drafts are visible to admins only.
func (a *InteractionModule) loadView(c *gin.Context, postID uint) (*View, bool) {
	sess := auth.SessionFrom(c)
	post, err := a.store.GetPost(c.Request.Context(), postID)
	if err != nil || (!post.Published && !sess.IsAdmin()) {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load post"})
			return nil, false
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return nil, false
	}

	view := NewView(a.store, post.ID, sess)
	if err := view.Load(c.Request.Context()); err != nil {
		logging.L.Error().Err(err).Uint("post_id", post.ID).Msg("load interactions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load interactions"})
		return nil, false
	}
	return view, true
}

// respondError maps interaction failures onto a status and a user-visible message.
// The body carries the view's state so clients can render the rollback.
func respondError(c *gin.Context, view *View, err error) {
	status, body := errorResponse(err)
	if view != nil {
		body["state"] = view.State()
	}
	c.JSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, ErrLoginRequired):
		return http.StatusUnauthorized, gin.H{"error": "Please log in first", "redirect": "/login"}
	case errors.Is(err, ErrEmptyComment):
		return http.StatusBadRequest, gin.H{"error": "Comment cannot be empty"}
	case errors.Is(err, store.ErrBlocked):
		return http.StatusForbidden, gin.H{"error": "You have been blocked from commenting"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, gin.H{"error": "You are not allowed to do that"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": "Not found"}
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, gin.H{"error": "Something went wrong, please try again"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again"}
	}
}

func (a *InteractionModule) interactions(c *gin.Context) {
	postID, ok := parseID(c)
	if !ok {
		return
	}
	view, ok := a.loadView(c, postID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view.State())
}

func (a *InteractionModule) toggleLike(c *gin.Context) {
	postID, ok := parseID(c)
	if !ok {
		return
	}
	if !auth.SessionFrom(c).SignedIn() {
		respondError(c, nil, ErrLoginRequired)
		return
	}
	view, ok := a.loadView(c, postID)
	if !ok {
		return
	}

	if err := view.ToggleLike(c.Request.Context()); err != nil {
		logging.L.Warn().Err(err).Uint("post_id", postID).Msg("toggle like rolled back")
		respondError(c, view, err)
		return
	}
	c.JSON(http.StatusOK, view.State())
}

type commentRequest struct {
	Content string `json:"content"`
}

func (a *InteractionModule) postComment(c *gin.Context) {
	postID, ok := parseID(c)
	if !ok {
		return
	}
	if !auth.SessionFrom(c).SignedIn() {
		respondError(c, nil, ErrLoginRequired)
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	view, ok := a.loadView(c, postID)
	if !ok {
		return
	}
	if err := view.PostComment(c.Request.Context(), req.Content); err != nil {
		respondError(c, view, err)
		return
	}
	c.JSON(http.StatusCreated, view.State())
}

func (a *InteractionModule) deleteComment(c *gin.Context) {
	commentID, ok := parseID(c)
	if !ok {
		return
	}
	sess := auth.SessionFrom(c)
	if !sess.SignedIn() {
		respondError(c, nil, ErrLoginRequired)
		return
	}

	comment, err := a.store.GetComment(c.Request.Context(), commentID)
	if err != nil {
		respondError(c, nil, err)
		return
	}
	view := NewView(a.store, comment.PostID, sess)
	if err := view.Load(c.Request.Context()); err != nil {
		respondError(c, nil, err)
		return
	}
	if err := view.DeleteComment(c.Request.Context(), commentID); err != nil {
		respondError(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, view.State())
}

func (a *InteractionModule) blockUser(c *gin.Context) {
	a.moderate(c, true)
}

func (a *InteractionModule) unblockUser(c *gin.Context) {
	a.moderate(c, false)
}

func (a *InteractionModule) moderate(c *gin.Context, blocked bool) {
	userID, ok := parseID(c)
	if !ok {
		return
	}
	view := NewView(a.store, 0, auth.SessionFrom(c))

	var err error
	if blocked {
		err = view.BlockUser(c.Request.Context(), userID)
	} else {
		err = view.UnblockUser(c.Request.Context(), userID)
	}
	if err != nil {
		respondError(c, nil, err)
		return
	}

	logging.L.Info().Uint("user_id", userID).Bool("blocked", blocked).
		Uint("by", auth.SessionFrom(c).UserID()).Msg("user moderation")
	msg := "User blocked"
	if !blocked {
		msg = "User unblocked"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
