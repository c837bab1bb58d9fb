package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"garden/models"
	"garden/store"
)

const sessionContextKey = "session"

// Session is the per-request auth state handed to every handler.
// User and Profile are nil for anonymous visitors.
type Session struct {
	User    *models.User
	Profile *models.Profile
}

func (s *Session) SignedIn() bool {
	return s != nil && s.User != nil
}

func (s *Session) UserID() uint {
	if !s.SignedIn() {
		return 0
	}
	return s.User.ID
}

func (s *Session) IsAdmin() bool {
	return s.SignedIn() && s.Profile != nil && s.Profile.IsAdmin
}

func (s *Session) IsBlocked() bool {
	return s.SignedIn() && s.Profile != nil && s.Profile.IsBlocked
}

func (s *Session) Email() string {
	if !s.SignedIn() {
		return ""
	}
	return s.User.Email
}

// LoadSession resolves the user and profile once per request.
func (p *Provider) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := &Session{}
		if user := p.CurrentUser(c); user != nil {
			sess.User = user
			profile, err := p.store.GetProfile(c.Request.Context(), user.ID)
			if errors.Is(err, store.ErrNotFound) {
				profile, err = p.store.EnsureProfile(c.Request.Context(), user.ID, p.adminEmails[user.Email])
			}
			if err == nil {
				sess.Profile = profile
			}
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// SessionFrom returns the request's session; never nil.
func SessionFrom(c *gin.Context) *Session {
	if v, ok := c.Get(sessionContextKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return &Session{}
}

func wantsJSON(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}

// RequireUser sends anonymous visitors to /login.
func RequireUser(c *gin.Context) {
	if SessionFrom(c).SignedIn() {
		c.Next()
		return
	}
	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Login required", "redirect": "/login"})
		return
	}
	c.Redirect(http.StatusFound, "/login")
	c.Abort()
}

// RequireAdmin sends anonymous visitors to /admin/login and rejects non-admins.
func RequireAdmin(c *gin.Context) {
	sess := SessionFrom(c)
	if !sess.SignedIn() {
		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Login required", "redirect": "/admin/login"})
			return
		}
		c.Redirect(http.StatusFound, "/admin/login")
		c.Abort()
		return
	}
	if !sess.IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}
	c.Next()
}
