// Package account serves reader sign-in, sign-up and the profile page.
package account

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"garden/auth"
	"garden/logging"
	"garden/models"
	"garden/store"
	"garden/views"
)

const (
	modeSignIn = "signin"
	modeSignUp = "signup"

	maxUsernameLen = 30
	maxBioLen      = 1000
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]*$`)

type AccountModule struct {
	store *store.Store
	auth  *auth.Provider
}

func NewAccountModule(s *store.Store, provider *auth.Provider) *AccountModule {
	return &AccountModule{store: s, auth: provider}
}

func (a *AccountModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/login", a.loginPage)
	router.POST("/login", a.loginPost)
	router.GET("/logout", a.logout)

	profile := router.Group("/profile", auth.RequireUser)
	{
		profile.GET("", a.profilePage)
		profile.POST("", a.updateProfile)
	}
}

func (a *AccountModule) loginPage(c *gin.Context) {
	if auth.SessionFrom(c).SignedIn() {
		c.Redirect(http.StatusFound, "/")
		return
	}

	mode := modeSignIn
	if c.Query("mode") == modeSignUp {
		mode = modeSignUp
	}
	c.HTML(http.StatusOK, "login.html", views.Page(c, gin.H{
		"title": "Login",
		"mode":  mode,
	}))
}

func (a *AccountModule) loginPost(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	mode := modeSignIn
	if c.PostForm("mode") == modeSignUp {
		mode = modeSignUp
	}

	formData := gin.H{
		"title": "Login",
		"mode":  mode,
		"email": email,
	}

	if mode == modeSignUp {
		if _, err := a.auth.SignUp(c.Request.Context(), email, password); err != nil {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, auth.ErrInvalidEmail):
				formData["error"] = "Please enter a valid email"
			case errors.Is(err, auth.ErrWeakPassword):
				formData["error"] = "Password must be at least 6 characters"
			case errors.Is(err, auth.ErrEmailTaken):
				formData["error"] = "This email is already registered"
			default:
				logging.L.Error().Err(err).Msg("sign up failed")
				status = http.StatusInternalServerError
				formData["error"] = "Could not create your account"
			}
			c.HTML(status, "login.html", views.Page(c, formData))
			return
		}
	}

	if _, err := a.auth.SignInWithPassword(c, email, password); err != nil {
		status := http.StatusUnauthorized
		formData["error"] = "Invalid email or password"
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			logging.L.Error().Err(err).Msg("sign in failed")
			status = http.StatusInternalServerError
			formData["error"] = "Could not sign you in"
		}
		c.HTML(status, "login.html", views.Page(c, formData))
		return
	}

	c.Redirect(http.StatusFound, "/")
}

func (a *AccountModule) logout(c *gin.Context) {
	if err := a.auth.SignOut(c); err != nil {
		logging.L.Warn().Err(err).Msg("sign out failed")
	}
	c.Redirect(http.StatusFound, "/")
}

func (a *AccountModule) profilePage(c *gin.Context) {
	sess := auth.SessionFrom(c)
	profile := sess.Profile
	if profile == nil {
		profile = &models.Profile{ID: sess.UserID()}
	}

	c.HTML(http.StatusOK, "profile.html", views.Page(c, gin.H{
		"title":   "Profile",
		"email":   sess.Email(),
		"profile": profile,
	}))
}

func (a *AccountModule) updateProfile(c *gin.Context) {
	sess := auth.SessionFrom(c)
	profile := &models.Profile{
		ID:        sess.UserID(),
		FullName:  strings.TrimSpace(c.PostForm("full_name")),
		Username:  strings.TrimSpace(c.PostForm("username")),
		AvatarURL: strings.TrimSpace(c.PostForm("avatar_url")),
		Website:   strings.TrimSpace(c.PostForm("website")),
		Bio:       strings.TrimSpace(c.PostForm("bio")),
	}
	if sess.Profile != nil {
		profile.IsAdmin = sess.Profile.IsAdmin
		profile.IsBlocked = sess.Profile.IsBlocked
	}

	data := gin.H{
		"title":   "Profile",
		"email":   sess.Email(),
		"profile": profile,
	}

	if msg := validateProfile(profile); msg != "" {
		data["error"] = msg
		c.HTML(http.StatusBadRequest, "profile.html", views.Page(c, data))
		return
	}

	if err := a.store.UpsertProfile(c.Request.Context(), profile); err != nil {
		logging.L.Error().Err(err).Uint("user_id", profile.ID).Msg("update profile failed")
		data["error"] = "Error updating the data!"
		c.HTML(http.StatusInternalServerError, "profile.html", views.Page(c, data))
		return
	}

	data["message"] = "Profile updated successfully!"
	c.HTML(http.StatusOK, "profile.html", views.Page(c, data))
}

func validateProfile(p *models.Profile) string {
	if len(p.Username) > maxUsernameLen || !usernamePattern.MatchString(p.Username) {
		return "Username may only contain letters, numbers, dots, dashes and underscores"
	}
	if p.Website != "" && !strings.HasPrefix(p.Website, "http://") && !strings.HasPrefix(p.Website, "https://") {
		return "Website must start with http:// or https://"
	}
	if p.AvatarURL != "" && !strings.HasPrefix(p.AvatarURL, "http://") && !strings.HasPrefix(p.AvatarURL, "https://") && !strings.HasPrefix(p.AvatarURL, "/") {
		return "Avatar must be a link to an image"
	}
	if len(p.Bio) > maxBioLen {
		return "Bio is too long"
	}
	return ""
}
