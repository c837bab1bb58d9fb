package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"garden/models"
)

func (s *Store) ListPublishedPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("published = ?", true).
		Order("created_at DESC").
		Find(&posts).Error
	return posts, err
}

// ListAllPosts returns drafts and published posts, newest first.
func (s *Store) ListAllPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&posts).Error
	return posts, err
}

// GetPostBySlug returns ErrNotFound for unknown slugs and, unless includeDrafts, for drafts.
func (s *Store) GetPostBySlug(ctx context.Context, slug string, includeDrafts bool) (*models.Post, error) {
	q := s.db.WithContext(ctx).Where("slug = ?", slug)
	if !includeDrafts {
		q = q.Where("published = ?", true)
	}
	var post models.Post
	if err := q.First(&post).Error; err != nil {
		return nil, classify(err)
	}
	return &post, nil
}

func (s *Store) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, classify(err)
	}
	return &post, nil
}

func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	return classify(s.db.WithContext(ctx).Create(post).Error)
}

// UpdatePost saves the editable columns; view_count and created_at are left alone.
func (s *Store) UpdatePost(ctx context.Context, post *models.Post) error {
	post.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&models.Post{ID: post.ID}).
		Select("title", "slug", "category", "excerpt", "content", "published", "updated_at").
		Updates(post)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes the row outright, together with its likes and comments.
func (s *Store) DeletePost(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		return tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error
	})
	return classify(err)
}

// IncrementViews is the atomic view counting call: one UPDATE, no read-modify-write.
func (s *Store) IncrementViews(ctx context.Context, postID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment views of post %d: %w", postID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PostsReferencing returns posts whose content mentions needle (an asset URL).
func (s *Store) PostsReferencing(ctx context.Context, needle string) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Select("id", "title", "slug").
		Where("content LIKE ?", "%"+needle+"%").
		Find(&posts).Error
	return posts, err
}
