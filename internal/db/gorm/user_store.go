package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// UserStore provides user-profile database operations.
type UserStore struct {
	store *Store
}

// NewUserStore creates a new user store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{store: store}
}

// GetOrCreate returns the profile for an external auth subject, creating
// it on first sight and touching last-login otherwise.
func (s *UserStore) GetOrCreate(ctx context.Context, externalID string) (*User, error) {
	var user User
	err := s.store.DB.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{ExternalID: externalID}
		if err := s.store.DB.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}

	now := time.Now()
	user.LastLoginAt = now.Format(time.RFC3339)
	user.LastLoginAtEpoch = now.UnixMilli()
	err = s.store.DB.WithContext(ctx).
		Model(&user).
		Updates(map[string]interface{}{
			"last_login_at":       user.LastLoginAt,
			"last_login_at_epoch": user.LastLoginAtEpoch,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("touch last login: %w", err)
	}

	return &user, nil
}

// UpdateProfile updates email and/or name; nil fields are left untouched.
// Creates the profile when it does not exist yet.
func (s *UserStore) UpdateProfile(ctx context.Context, externalID string, email, name *string) (*User, error) {
	user, err := s.GetOrCreate(ctx, externalID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if email != nil {
		user.Email = sql.NullString{String: *email, Valid: *email != ""}
		updates["email"] = user.Email
	}
	if name != nil {
		user.Name = sql.NullString{String: *name, Valid: *name != ""}
		updates["name"] = user.Name
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.store.DB.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// CompleteOnboarding marks a user's onboarding as finished.
func (s *UserStore) CompleteOnboarding(ctx context.Context, externalID string) error {
	res := s.store.DB.WithContext(ctx).
		Model(&User{}).
		Where("external_id = ?", externalID).
		Update("onboarding_completed", true)
	if res.Error != nil {
		return fmt.Errorf("complete onboarding: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
