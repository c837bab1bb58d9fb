// Package admin is the author's back office: posts, images, newsletter and user moderation.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"garden/assets"
	"garden/auth"
	"garden/logging"
	"garden/models"
	"garden/newsletter"
	"garden/store"
	"garden/views"
)

type AdminModule struct {
	store      *store.Store
	auth       *auth.Provider
	assets     assets.Store
	newsletter *newsletter.Dispatcher
}

func NewAdminModule(s *store.Store, provider *auth.Provider, assetStore assets.Store, dispatcher *newsletter.Dispatcher) *AdminModule {
	return &AdminModule{
		store:      s,
		auth:       provider,
		assets:     assetStore,
		newsletter: dispatcher,
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/admin", a.adminRoot)
	router.GET("/admin/login", a.loginPage)
	router.POST("/admin/login", a.loginPost)
	router.GET("/admin/logout", a.logout)

	adminGroup := router.Group("/admin", auth.RequireAdmin)
	{
		adminGroup.GET("/dashboard", a.dashboard)
		adminGroup.GET("/create", a.newPost)
		adminGroup.POST("/create", a.savePost)
		adminGroup.GET("/edit/:id", a.editPost)
		adminGroup.POST("/edit/:id", a.updatePost)
		adminGroup.DELETE("/posts/:id", a.deletePost)
		adminGroup.POST("/posts/:id/notify", a.notifySubscribers)

		adminGroup.POST("/images", a.uploadImage)
		adminGroup.GET("/images", a.listImages)
		adminGroup.DELETE("/images/*key", a.deleteImage)

		adminGroup.GET("/users", a.listUsers)
		adminGroup.POST("/users/:id/block", a.blockUser)
		adminGroup.POST("/users/:id/unblock", a.unblockUser)
		adminGroup.POST("/users/:id/promote", a.promoteUser)
		adminGroup.POST("/users/:id/demote", a.demoteUser)
	}
}

func (a *AdminModule) adminRoot(c *gin.Context) {
	if auth.SessionFrom(c).IsAdmin() {
		c.Redirect(http.StatusFound, "/admin/dashboard")
		return
	}
	c.Redirect(http.StatusFound, "/admin/login")
}

func (a *AdminModule) loginPage(c *gin.Context) {
	if auth.SessionFrom(c).IsAdmin() {
		c.Redirect(http.StatusFound, "/admin/dashboard")
		return
	}
	c.HTML(http.StatusOK, "admin_login.html", views.Page(c, gin.H{"title": "Admin"}))
}

func (a *AdminModule) loginPost(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	formData := gin.H{"title": "Admin", "email": email}

	user, err := a.auth.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		status := http.StatusUnauthorized
		formData["error"] = "Invalid email or password"
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			logging.L.Error().Err(err).Msg("admin authenticate failed")
			status = http.StatusInternalServerError
			formData["error"] = "Could not sign you in"
		}
		c.HTML(status, "admin_login.html", views.Page(c, formData))
		return
	}

	profile, err := a.store.GetProfile(c.Request.Context(), user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.L.Error().Err(err).Uint("user_id", user.ID).Msg("load admin profile failed")
		formData["error"] = "Could not sign you in"
		c.HTML(http.StatusInternalServerError, "admin_login.html", views.Page(c, formData))
		return
	}
	if profile == nil || !profile.IsAdmin {
		formData["error"] = "This account does not have admin access"
		c.HTML(http.StatusForbidden, "admin_login.html", views.Page(c, formData))
		return
	}

	if err := a.auth.StartSession(c, user); err != nil {
		logging.L.Error().Err(err).Msg("save admin session failed")
		formData["error"] = "Could not sign you in"
		c.HTML(http.StatusInternalServerError, "admin_login.html", views.Page(c, formData))
		return
	}

	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (a *AdminModule) logout(c *gin.Context) {
	if err := a.auth.SignOut(c); err != nil {
		logging.L.Warn().Err(err).Msg("admin sign out failed")
	}
	c.Redirect(http.StatusFound, "/admin/login")
}

type DashboardStats struct {
	Total       int
	Published   int
	Drafts      int
	Subscribers int64
}

func (a *AdminModule) dashboard(c *gin.Context) {
	posts, err := a.store.ListAllPosts(c.Request.Context())
	if err != nil {
		logging.L.Error().Err(err).Msg("list posts failed")
		c.HTML(http.StatusInternalServerError, "error.html", views.Page(c, gin.H{
			"error": "Failed to load posts",
		}))
		return
	}

	stats := DashboardStats{Total: len(posts)}
	for _, p := range posts {
		if p.Published {
			stats.Published++
		} else {
			stats.Drafts++
		}
	}
	if stats.Subscribers, err = a.store.CountSubscribers(c.Request.Context()); err != nil {
		logging.L.Warn().Err(err).Msg("count subscribers failed")
	}

	c.HTML(http.StatusOK, "admin_dashboard.html", views.Page(c, gin.H{
		"title": "Dashboard",
		"posts": posts,
		"stats": stats,
	}))
}

func (a *AdminModule) newPost(c *gin.Context) {
	c.HTML(http.StatusOK, "admin_edit.html", views.Page(c, gin.H{
		"title": "New post",
		"isNew": true,
		"post":  &models.Post{},
	}))
}

// postFromForm reads the editor form. The slug falls back to the title.
func postFromForm(c *gin.Context) *models.Post {
	slug := strings.TrimSpace(c.PostForm("slug"))
	if slug == "" {
		slug = c.PostForm("title")
	}
	return &models.Post{
		Title:     strings.TrimSpace(c.PostForm("title")),
		Slug:      generateSlug(slug),
		Category:  strings.TrimSpace(c.PostForm("category")),
		Excerpt:   strings.TrimSpace(c.PostForm("excerpt")),
		Content:   c.PostForm("content"),
		Published: c.PostForm("published") != "",
	}
}

func validatePost(p *models.Post) string {
	if p.Title == "" {
		return "Title is required"
	}
	if p.Slug == "" {
		return "Slug must contain at least one letter or number"
	}
	return ""
}

func (a *AdminModule) savePost(c *gin.Context) {
	post := postFromForm(c)
	formData := gin.H{"title": "New post", "isNew": true, "post": post}

	if msg := validatePost(post); msg != "" {
		formData["error"] = msg
		c.HTML(http.StatusBadRequest, "admin_edit.html", views.Page(c, formData))
		return
	}

	if err := a.store.CreatePost(c.Request.Context(), post); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			formData["error"] = "A post with this slug already exists"
			c.HTML(http.StatusBadRequest, "admin_edit.html", views.Page(c, formData))
			return
		}
		logging.L.Error().Err(err).Str("slug", post.Slug).Msg("create post failed")
		formData["error"] = "Error creating post"
		c.HTML(http.StatusInternalServerError, "admin_edit.html", views.Page(c, formData))
		return
	}

	logging.L.Info().Uint("post_id", post.ID).Str("slug", post.Slug).Bool("published", post.Published).Msg("post created")
	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (a *AdminModule) postNotFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "not_found.html", views.Page(c, gin.H{
		"title": "Not found",
		"error": "Post not found",
	}))
}

func (a *AdminModule) editPost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		a.postNotFound(c)
		return
	}

	post, err := a.store.GetPost(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.postNotFound(c)
			return
		}
		logging.L.Error().Err(err).Uint("post_id", id).Msg("load post failed")
		c.HTML(http.StatusInternalServerError, "error.html", views.Page(c, gin.H{"error": "Failed to load post"}))
		return
	}

	c.HTML(http.StatusOK, "admin_edit.html", views.Page(c, gin.H{
		"title": "Edit post",
		"post":  post,
	}))
}

func (a *AdminModule) updatePost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		a.postNotFound(c)
		return
	}

	post := postFromForm(c)
	post.ID = id
	formData := gin.H{"title": "Edit post", "post": post}

	if msg := validatePost(post); msg != "" {
		formData["error"] = msg
		c.HTML(http.StatusBadRequest, "admin_edit.html", views.Page(c, formData))
		return
	}

	if err := a.store.UpdatePost(c.Request.Context(), post); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			a.postNotFound(c)
		case errors.Is(err, store.ErrDuplicate):
			formData["error"] = "A post with this slug already exists"
			c.HTML(http.StatusBadRequest, "admin_edit.html", views.Page(c, formData))
		default:
			logging.L.Error().Err(err).Uint("post_id", id).Msg("update post failed")
			formData["error"] = "Error updating post"
			c.HTML(http.StatusInternalServerError, "admin_edit.html", views.Page(c, formData))
		}
		return
	}

	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (a *AdminModule) deletePost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	if err := a.store.DeletePost(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		logging.L.Error().Err(err).Uint("post_id", id).Msg("delete post failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error deleting post"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

func (a *AdminModule) notifySubscribers(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	post, err := a.store.GetPost(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load post"})
		return
	}
	if !post.Published {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Publish the post before sending it"})
		return
	}

	sent, err := a.newsletter.SendPost(c.Request.Context(), post)
	switch {
	case errors.Is(err, newsletter.ErrNoSubscribers):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No subscribers found."})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Error sending emails."})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Emails sent!", "recipients": sent})
	}
}

// generateSlug lower-cases, folds accents and keeps only [a-z0-9_-].
func generateSlug(title string) string {
	accentMap := map[rune]rune{
		'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a', 'å': 'a', 'ā': 'a',
		'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e',
		'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i',
		'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o', 'ø': 'o', 'ō': 'o',
		'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u',
		'ç': 'c', 'ć': 'c', 'č': 'c',
		'ñ': 'n', 'ń': 'n',
		'ý': 'y', 'ÿ': 'y',
		'ß': 's',
	}

	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Map(func(r rune) rune {
		if replacement, exists := accentMap[r]; exists {
			return replacement
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		if r == ' ' || r == '\t' {
			return '-'
		}
		return -1
	}, slug)

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
