package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GoalStore provides reduction-goal database operations.
type GoalStore struct {
	store *Store
}

// NewGoalStore creates a new goal store.
func NewGoalStore(store *Store) *GoalStore {
	return &GoalStore{store: store}
}

// SetGoal archives the user's active goal (if any) and creates a new one.
// Both steps run in one transaction so there is never more than one active
// goal per user.
func (s *GoalStore) SetGoal(ctx context.Context, userID string, targetCO2e float64, period string) (*UserGoal, error) {
	goal := &UserGoal{
		UserID:     userID,
		TargetCO2e: targetCO2e,
		Period:     period,
	}

	err := s.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		err := tx.Model(&UserGoal{}).
			Where("user_id = ? AND ended_at_epoch IS NULL", userID).
			Updates(map[string]interface{}{
				"ended_at":       now.Format(time.RFC3339),
				"ended_at_epoch": now.UnixMilli(),
			}).Error
		if err != nil {
			return fmt.Errorf("archive active goal: %w", err)
		}

		if err := tx.Create(goal).Error; err != nil {
			return fmt.Errorf("create goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// ActiveGoal returns the user's active goal, or nil when none exists.
func (s *GoalStore) ActiveGoal(ctx context.Context, userID string) (*UserGoal, error) {
	var goal UserGoal
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ? AND ended_at_epoch IS NULL", userID).
		Order("started_at_epoch DESC").
		First(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch active goal: %w", err)
	}
	return &goal, nil
}

// ListByUser returns all of a user's goals, newest first.
func (s *GoalStore) ListByUser(ctx context.Context, userID string) ([]*UserGoal, error) {
	var goals []*UserGoal
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at_epoch DESC").
		Find(&goals).Error
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// DeleteByUser removes all of a user's goals (privacy erasure).
func (s *GoalStore) DeleteByUser(ctx context.Context, userID string) error {
	return s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&UserGoal{}).Error
}
