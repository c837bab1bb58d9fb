// Package auth is the identity provider: password sign-in, sign-up, sessions and
// the auth state change stream.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"garden/logging"
	"garden/models"
	"garden/store"
)

const (
	sessionUserKey = "user_id"
	minPasswordLen = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("this email is already registered")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// Event is an auth state change.
type Event string

const (
	SignedIn  Event = "signed_in"
	SignedOut Event = "signed_out"
	SignedUp  Event = "signed_up"
)

// Listener receives auth state changes. user is nil for SignedOut.
type Listener func(event Event, user *models.User)

type Provider struct {
	store       *store.Store
	adminEmails map[string]bool
	bcryptCost  int

	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewProvider returns a Provider. Addresses in adminEmails become admins when they sign up.
func NewProvider(s *store.Store, adminEmails []string) *Provider {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &Provider{
		store:       s,
		adminEmails: admins,
		bcryptCost:  12,
		listeners:   make(map[int]Listener),
	}
}

// SetBcryptCost lowers the hashing cost, for tests.
func (p *Provider) SetBcryptCost(cost int) {
	p.bcryptCost = cost
}

// OnAuthStateChange registers fn and returns a function that unregisters it.
func (p *Provider) OnAuthStateChange(fn Listener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// emit calls listeners outside the lock so they may register or unregister.
func (p *Provider) emit(event Event, user *models.User) {
	p.mu.RLock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.RUnlock()

	for _, fn := range listeners {
		fn(event, user)
	}
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

// SignUp creates the identity and its empty profile.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{Email: email, PasswordHash: string(hash)}
	if err := p.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if _, err := p.store.EnsureProfile(ctx, user.ID, p.adminEmails[email]); err != nil {
		return nil, err
	}
	logging.L.Info().Uint("user_id", user.ID).Msg("user signed up")
	p.emit(SignedUp, user)
	return user, nil
}

// Authenticate checks the credentials without touching any session.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := p.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// SignInWithPassword authenticates and stores the user in the session cookie.
func (p *Provider) SignInWithPassword(c *gin.Context, email, password string) (*models.User, error) {
	user, err := p.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		return nil, err
	}
	if err := p.StartSession(c, user); err != nil {
		return nil, err
	}
	return user, nil
}

// StartSession signs in a user that was already authenticated.
func (p *Provider) StartSession(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		return err
	}
	p.emit(SignedIn, user)
	return nil
}

func (p *Provider) SignOut(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		return err
	}
	p.emit(SignedOut, nil)
	return nil
}

// CurrentUser resolves the session cookie. It returns nil for anonymous visitors
// and for sessions whose user no longer exists.
func (p *Provider) CurrentUser(c *gin.Context) *models.User {
	session := sessions.Default(c)
	raw := session.Get(sessionUserKey)
	if raw == nil {
		return nil
	}

	var id uint
	switch v := raw.(type) {
	case uint:
		id = v
	case int:
		id = uint(v)
	case int64:
		id = uint(v)
	case uint64:
		id = uint(v)
	default:
		return nil
	}

	user, err := p.store.GetUser(c.Request.Context(), id)
	if err != nil {
		return nil
	}
	return user
}
