// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"garden/database"
	"garden/models"
)

// NewDB opens a migrated in-memory sqlite database. A single connection keeps
// every goroutine on the same in-memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db))
	return db
}

// CreateUser stores a user with password "password123" and an empty profile.
func CreateUser(t *testing.T, db *gorm.DB, email string, isAdmin bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{Email: email, PasswordHash: string(hash)}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.Profile{ID: user.ID, IsAdmin: isAdmin}).Error)
	return user
}

func CreatePost(t *testing.T, db *gorm.DB, slug string, published bool) *models.Post {
	t.Helper()
	post := &models.Post{
		Title:     fmt.Sprintf("Post %s", slug),
		Slug:      slug,
		Category:  "Notes",
		Excerpt:   "A short summary",
		Content:   "# Heading\n\nSome **markdown** content.",
		Published: published,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func CreateComment(t *testing.T, db *gorm.DB, postID uint, user *models.User, content string) *models.Comment {
	t.Helper()
	c := &models.Comment{PostID: postID, UserID: user.ID, Email: user.Email, Content: content}
	require.NoError(t, db.Create(c).Error)
	return c
}
