// Package interaction holds likes, comments and moderation for one post view,
// kept in sync with other readers through the push-update channel.
package interaction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"garden/auth"
	"garden/models"
	"garden/realtime"
	"garden/store"
)

var (
	ErrLoginRequired = errors.New("login required")
	ErrForbidden     = errors.New("not allowed")
	ErrEmptyComment  = errors.New("comment cannot be empty")
)

// Backend is the part of the store a View reads and writes.
type Backend interface {
	CountLikes(ctx context.Context, postID uint) (int64, error)
	HasLiked(ctx context.Context, postID, userID uint) (bool, error)
	InsertLike(ctx context.Context, postID, userID uint) error
	DeleteLike(ctx context.Context, postID, userID uint) error
	ListComments(ctx context.Context, postID uint) ([]models.CommentWithAuthor, error)
	GetComment(ctx context.Context, id uint) (*models.Comment, error)
	InsertComment(ctx context.Context, c *models.Comment) error
	DeleteComment(ctx context.Context, id uint) error
	SetBlocked(ctx context.Context, userID uint, blocked bool) error
}

// CommentView is a comment as rendered for one viewer.
type CommentView struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"user_id"`
	Author        string    `json:"author"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	AuthorBlocked bool      `json:"author_blocked"`
	CanDelete     bool      `json:"can_delete"`
}

// State is a snapshot of a View.
type State struct {
	PostID    uint          `json:"post_id"`
	SignedIn  bool          `json:"signed_in"`
	IsAdmin   bool          `json:"is_admin"`
	Blocked   bool          `json:"blocked"`
	Liked     bool          `json:"liked"`
	LikeCount int64         `json:"like_count"`
	Comments  []CommentView `json:"comments"`
}

// View is the interaction state of one mounted post view. Local state changes
// before the store confirms a like toggle and is reverted when the store fails.
// Once closed, late results are discarded.
type View struct {
	backend Backend
	postID  uint
	session *auth.Session

	mu        sync.Mutex
	closed    bool
	liked     bool
	likeCount int64
	comments  []models.CommentWithAuthor
	blocked   bool

	// likesGen counts like refetches; a failed toggle only reverts when none landed.
	likesGen   uint64
	optimistic func(State)
}

func NewView(backend Backend, postID uint, session *auth.Session) *View {
	if session == nil {
		session = &auth.Session{}
	}
	return &View{
		backend: backend,
		postID:  postID,
		session: session,
		blocked: session.IsBlocked(),
	}
}

func (v *View) PostID() uint {
	return v.postID
}

// OnOptimisticUpdate registers fn to receive the local snapshot before the store is called.
func (v *View) OnOptimisticUpdate(fn func(State)) {
	v.mu.Lock()
	v.optimistic = fn
	v.mu.Unlock()
}

// Load fetches likes and comments.
func (v *View) Load(ctx context.Context) error {
	if err := v.refreshLikes(ctx); err != nil {
		return err
	}
	return v.refreshComments(ctx)
}

// Refresh refetches the table a change touched. Whichever refetch lands last wins.
func (v *View) Refresh(ctx context.Context, ch realtime.Change) error {
	if ch.PostID != 0 && ch.PostID != v.postID {
		return nil
	}
	switch ch.Table {
	case realtime.TableLikes:
		return v.refreshLikes(ctx)
	case realtime.TableComments:
		return v.refreshComments(ctx)
	}
	return nil
}

func (v *View) refreshLikes(ctx context.Context) error {
	count, err := v.backend.CountLikes(ctx, v.postID)
	if err != nil {
		return err
	}
	liked := false
	if v.session.SignedIn() {
		if liked, err = v.backend.HasLiked(ctx, v.postID, v.session.UserID()); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.likeCount = count
	v.liked = liked
	v.likesGen++
	return nil
}

func (v *View) refreshComments(ctx context.Context) error {
	comments, err := v.backend.ListComments(ctx, v.postID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.comments = comments
	for _, c := range comments {
		if c.UserID == v.session.UserID() {
			v.blocked = c.IsBlocked
			break
		}
	}
	return nil
}

// ToggleLike flips the like before the store call and reverts it when the call fails.
// A refetch that lands while the call is in flight wins over the revert.
func (v *View) ToggleLike(ctx context.Context) error {
	if !v.session.SignedIn() {
		return ErrLoginRequired
	}

	v.mu.Lock()
	wasLiked := v.liked
	v.liked = !wasLiked
	if wasLiked {
		v.likeCount--
	} else {
		v.likeCount++
	}
	gen := v.likesGen
	notify := v.optimistic
	var snapshot State
	if notify != nil {
		snapshot = v.stateLocked()
	}
	v.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}

	var err error
	if wasLiked {
		err = v.backend.DeleteLike(ctx, v.postID, v.session.UserID())
	} else {
		err = v.backend.InsertLike(ctx, v.postID, v.session.UserID())
	}
	if err == nil {
		return nil
	}

	v.mu.Lock()
	if !v.closed && v.likesGen == gen {
		v.liked = wasLiked
		if wasLiked {
			v.likeCount++
		} else {
			v.likeCount--
		}
	}
	v.mu.Unlock()
	return err
}

// PostComment inserts a comment and refetches the list.
func (v *View) PostComment(ctx context.Context, text string) error {
	if !v.session.SignedIn() {
		return ErrLoginRequired
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}

	v.mu.Lock()
	blocked := v.blocked
	v.mu.Unlock()
	if blocked {
		return store.ErrBlocked
	}

	c := &models.Comment{
		PostID:  v.postID,
		UserID:  v.session.UserID(),
		Email:   v.session.Email(),
		Content: text,
	}
	if err := v.backend.InsertComment(ctx, c); err != nil {
		if errors.Is(err, store.ErrBlocked) {
			v.mu.Lock()
			v.blocked = true
			v.mu.Unlock()
		}
		return err
	}
	return v.refreshComments(ctx)
}

// DeleteComment is allowed for the comment's author and for admins.
func (v *View) DeleteComment(ctx context.Context, commentID uint) error {
	if !v.session.SignedIn() {
		return ErrLoginRequired
	}
	c, err := v.backend.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.UserID != v.session.UserID() && !v.session.IsAdmin() {
		return ErrForbidden
	}
	if err := v.backend.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	if c.PostID != v.postID {
		return nil
	}
	return v.refreshComments(ctx)
}

// BlockUser marks the target blocked. Existing comments stay and render dimmed.
func (v *View) BlockUser(ctx context.Context, userID uint) error {
	return v.setBlocked(ctx, userID, true)
}

func (v *View) UnblockUser(ctx context.Context, userID uint) error {
	return v.setBlocked(ctx, userID, false)
}

func (v *View) setBlocked(ctx context.Context, userID uint, blocked bool) error {
	if !v.session.SignedIn() {
		return ErrLoginRequired
	}
	if !v.session.IsAdmin() {
		return ErrForbidden
	}
	if err := v.backend.SetBlocked(ctx, userID, blocked); err != nil {
		return err
	}
	if v.postID == 0 {
		return nil
	}
	return v.refreshComments(ctx)
}

// Close detaches the view. Results arriving afterwards are not applied.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() State {
	comments := make([]CommentView, 0, len(v.comments))
	for _, c := range v.comments {
		comments = append(comments, CommentView{
			ID:            c.ID,
			UserID:        c.UserID,
			Author:        c.DisplayName(),
			AvatarURL:     c.AvatarURL,
			Content:       c.Content,
			CreatedAt:     c.CreatedAt,
			AuthorBlocked: c.IsBlocked,
			CanDelete:     v.session.SignedIn() && (c.UserID == v.session.UserID() || v.session.IsAdmin()),
		})
	}
	return State{
		PostID:    v.postID,
		SignedIn:  v.session.SignedIn(),
		IsAdmin:   v.session.IsAdmin(),
		Blocked:   v.blocked,
		Liked:     v.liked,
		LikeCount: v.likeCount,
		Comments:  comments,
	}
}
