package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"garden/models"
)

func (s *Store) GetProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, userID).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

// UpsertProfile creates the profile on first save. On conflict only the
// owner-editable columns are overwritten; moderation flags are never touched.
func (s *Store) UpsertProfile(ctx context.Context, p *models.Profile) error {
	p.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "username", "avatar_url", "bio", "website", "updated_at"}),
	}).Omit("is_admin", "is_blocked").Create(p).Error
	return classify(err)
}

// EnsureProfile creates an empty profile for userID if none exists.
func (s *Store) EnsureProfile(ctx context.Context, userID uint, isAdmin bool) (*models.Profile, error) {
	p := models.Profile{ID: userID, IsAdmin: isAdmin, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return nil, classify(err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := s.db.WithContext(ctx).Order("id ASC").Find(&profiles).Error
	return profiles, err
}

// SetBlocked flips the moderation flag. Existing comments are left in place.
func (s *Store) SetBlocked(ctx context.Context, userID uint, blocked bool) error {
	return s.setFlag(ctx, userID, "is_blocked", blocked)
}

func (s *Store) SetAdmin(ctx context.Context, userID uint, admin bool) error {
	return s.setFlag(ctx, userID, "is_admin", admin)
}

func (s *Store) setFlag(ctx context.Context, userID uint, column string, value bool) error {
	res := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", userID).
		Update(column, value)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
