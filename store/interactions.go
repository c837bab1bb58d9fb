package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"garden/models"
	"garden/realtime"
)

// CountLikes aggregates at read time; no counter is stored on the post.
func (s *Store) CountLikes(ctx context.Context, postID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

func (s *Store) HasLiked(ctx context.Context, postID, userID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&n).Error
	return n > 0, err
}

// InsertLike fails with ErrDuplicate when the pair already has a like.
func (s *Store) InsertLike(ctx context.Context, postID, userID uint) error {
	if err := s.db.WithContext(ctx).Create(&models.Like{PostID: postID, UserID: userID}).Error; err != nil {
		return classify(err)
	}
	s.announce(ctx, realtime.TableLikes, realtime.EventInsert, postID)
	return nil
}

// DeleteLike returns ErrNotFound when there was nothing to delete.
func (s *Store) DeleteLike(ctx context.Context, postID, userID uint) error {
	res := s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Like{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.announce(ctx, realtime.TableLikes, realtime.EventDelete, postID)
	return nil
}

// ListComments returns a post's comments oldest first, joined with author profiles.
func (s *Store) ListComments(ctx context.Context, postID uint) ([]models.CommentWithAuthor, error) {
	var rows []models.CommentWithAuthor
	err := s.db.WithContext(ctx).
		Table("comments").
		Select(`comments.*,
			COALESCE(profiles.full_name, '') AS full_name,
			COALESCE(profiles.username, '') AS username,
			COALESCE(profiles.avatar_url, '') AS avatar_url,
			COALESCE(profiles.is_blocked, false) AS is_blocked`).
		Joins("LEFT JOIN profiles ON profiles.id = comments.user_id").
		Where("comments.post_id = ?", postID).
		Order("comments.created_at ASC, comments.id ASC").
		Scan(&rows).Error
	return rows, err
}

func (s *Store) GetComment(ctx context.Context, id uint) (*models.Comment, error) {
	var c models.Comment
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

// InsertComment rejects blocked authors with ErrBlocked on its own, whatever the
// caller checked beforehand. The check and the insert share one transaction.
func (s *Store) InsertComment(ctx context.Context, c *models.Comment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blocked int64
		if err := tx.Model(&models.Profile{}).
			Where("id = ? AND is_blocked = ?", c.UserID, true).
			Count(&blocked).Error; err != nil {
			return err
		}
		if blocked > 0 {
			return ErrBlocked
		}
		return tx.Create(c).Error
	})
	if err != nil {
		if errors.Is(err, ErrBlocked) {
			return err
		}
		return classify(err)
	}
	s.announce(ctx, realtime.TableComments, realtime.EventInsert, c.PostID)
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, id uint) error {
	c, err := s.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Comment{}, id).Error; err != nil {
		return classify(err)
	}
	s.announce(ctx, realtime.TableComments, realtime.EventDelete, c.PostID)
	return nil
}
