package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// RollupStore provides daily-rollup database operations.
type RollupStore struct {
	store *Store
}

// NewRollupStore creates a new rollup store.
func NewRollupStore(store *Store) *RollupStore {
	return &RollupStore{store: store}
}

// UpsertDay writes one user's rollup for one day, replacing any previous
// value. Re-running a rollup for the same day is safe.
func (s *RollupStore) UpsertDay(ctx context.Context, userID string, day time.Time, co2eKg float64, itemCount int) error {
	rollup := &DailyRollup{
		UserID:    userID,
		Day:       dayOf(day),
		CO2eKg:    co2eKg,
		ItemCount: itemCount,
	}

	err := s.store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoUpdates: clause.AssignmentColumns([]string{"co2e_kg", "item_count", "updated_at", "updated_at_epoch"}),
		}).
		Create(rollup).Error
	if err != nil {
		return fmt.Errorf("upsert rollup: %w", err)
	}
	return nil
}

// TrendsSince returns a user's rollups for days on or after sinceDay,
// oldest first.
func (s *RollupStore) TrendsSince(ctx context.Context, userID, sinceDay string) ([]DayTotal, error) {
	var trends []DayTotal
	err := s.store.DB.WithContext(ctx).
		Model(&DailyRollup{}).
		Where("user_id = ? AND day >= ?", userID, sinceDay).
		Select("day, co2e_kg").
		Order("day").
		Scan(&trends).Error
	if err != nil {
		return nil, fmt.Errorf("fetch rollup trends: %w", err)
	}
	return trends, nil
}
