package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"garden/auth"
	"garden/interaction"
	"garden/logging"
	"garden/store"
	"garden/views"
)

func (a *AdminModule) listUsers(c *gin.Context) {
	users, err := a.store.ListUsers(c.Request.Context())
	if err != nil {
		logging.L.Error().Err(err).Msg("list users failed")
		c.HTML(http.StatusInternalServerError, "error.html", views.Page(c, gin.H{
			"error": "Failed to load users",
		}))
		return
	}

	c.HTML(http.StatusOK, "admin_users.html", views.Page(c, gin.H{
		"title": "Users",
		"users": users,
	}))
}

func (a *AdminModule) blockUser(c *gin.Context) {
	a.moderate(c, func(v *interaction.View, id uint) error {
		return v.BlockUser(c.Request.Context(), id)
	})
}

func (a *AdminModule) unblockUser(c *gin.Context) {
	a.moderate(c, func(v *interaction.View, id uint) error {
		return v.UnblockUser(c.Request.Context(), id)
	})
}

func (a *AdminModule) promoteUser(c *gin.Context) {
	a.setAdmin(c, true)
}

func (a *AdminModule) demoteUser(c *gin.Context) {
	a.setAdmin(c, false)
}

// moderate runs block/unblock through the same path as the post page's moderation controls.
func (a *AdminModule) moderate(c *gin.Context, action func(v *interaction.View, id uint) error) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}
	sess := auth.SessionFrom(c)
	if id == sess.UserID() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot block yourself"})
		return
	}

	view := interaction.NewView(a.store, 0, sess)
	defer view.Close()
	if err := action(view, id); err != nil {
		a.moderationError(c, id, err)
		return
	}
	c.Redirect(http.StatusFound, "/admin/users")
}

func (a *AdminModule) setAdmin(c *gin.Context, admin bool) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}
	if !admin && id == auth.SessionFrom(c).UserID() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot remove your own admin access"})
		return
	}

	if err := a.store.SetAdmin(c.Request.Context(), id, admin); err != nil {
		a.moderationError(c, id, err)
		return
	}
	logging.L.Info().Uint("user_id", id).Bool("admin", admin).Msg("admin flag changed")
	c.Redirect(http.StatusFound, "/admin/users")
}

func (a *AdminModule) moderationError(c *gin.Context, id uint, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, interaction.ErrForbidden), errors.Is(err, interaction.ErrLoginRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
	default:
		logging.L.Error().Err(err).Uint("user_id", id).Msg("moderation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error updating user"})
	}
}
