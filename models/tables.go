package models

import (
	"strings"
	"time"
)

type Post struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Slug      string    `gorm:"not null;uniqueIndex" json:"slug"`
	Category  string    `gorm:"index" json:"category"`
	Excerpt   string    `gorm:"type:text" json:"excerpt"`
	Content   string    `gorm:"type:text" json:"content"` // markdown, may embed raw <img> tags
	Published bool      `gorm:"default:false;index" json:"published"`
	ViewCount int64     `gorm:"not null;default:0" json:"view_count"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the identity record owned by the auth provider.
type User struct {
	ID           uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"` // json:"-" keeps the hash out of API responses
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is layered on top of a User and shares its ID.
// IsAdmin and IsBlocked are moderation flags; the owner never writes them.
type Profile struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FullName  string    `json:"full_name"`
	Username  string    `gorm:"index" json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Bio       string    `gorm:"type:text" json:"bio"`
	Website   string    `json:"website"`
	IsAdmin   bool      `gorm:"default:false" json:"is_admin"`
	IsBlocked bool      `gorm:"default:false" json:"is_blocked"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Like struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_likes_post_user" json:"post_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_likes_post_user;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Email     string    `json:"email"` // copied from the author at write time
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

type Subscriber struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentWithAuthor is a comment joined with its author's profile at read time.
type CommentWithAuthor struct {
	Comment
	FullName  string `json:"full_name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	IsBlocked bool   `json:"is_blocked"`
}

// DisplayName falls back from full name to username to the email's local part.
func (c CommentWithAuthor) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	if c.Username != "" {
		return c.Username
	}
	if at := strings.Index(c.Email, "@"); at > 0 {
		return c.Email[:at]
	}
	return "Anonymous"
}
