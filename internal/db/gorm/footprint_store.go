package gorm

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/ecotrace/pkg/models"
)

// FootprintStore provides footprint-record database operations. It is the
// pipeline's persistence sink: one durable record per assessed item.
type FootprintStore struct {
	store *Store
}

// NewFootprintStore creates a new footprint store.
func NewFootprintStore(store *Store) *FootprintStore {
	return &FootprintStore{store: store}
}

// InsertRecord durably writes one footprint record and returns its ID.
// The insert is a single transaction; a failure leaves nothing behind.
func (s *FootprintStore) InsertRecord(ctx context.Context, userID string, item models.Item, cls models.Classification, co2eKg float64, suggestions []string) (int64, error) {
	rec := &FootprintRecord{
		UserID:                   userID,
		ItemName:                 item.Name,
		Category:                 string(cls.Category),
		ClassificationConfidence: cls.Confidence,
		Quantity:                 item.Quantity,
		Unit:                     item.Unit,
		CO2eKg:                   co2eKg,
		Suggestions:              models.JSONStringArray(suggestions),
	}

	if err := s.store.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return 0, fmt.Errorf("insert footprint record: %w", err)
	}
	return rec.ID, nil
}

// CategoryTotal is one category's aggregated CO2e.
type CategoryTotal struct {
	Category string  `json:"category"`
	CO2eKg   float64 `json:"co2e_kg"`
}

// Stats aggregates a user's total CO2e and per-category breakdown.
func (s *FootprintStore) Stats(ctx context.Context, userID string) (float64, []CategoryTotal, error) {
	var total float64
	err := s.store.DB.WithContext(ctx).
		Model(&FootprintRecord{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(co2e_kg), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, nil, fmt.Errorf("sum co2e: %w", err)
	}

	var byCategory []CategoryTotal
	err = s.store.DB.WithContext(ctx).
		Model(&FootprintRecord{}).
		Where("user_id = ?", userID).
		Select("category, SUM(co2e_kg) AS co2e_kg").
		Group("category").
		Order("category").
		Scan(&byCategory).Error
	if err != nil {
		return 0, nil, fmt.Errorf("sum co2e by category: %w", err)
	}

	return total, byCategory, nil
}

// DayTotal is one day's aggregated CO2e.
type DayTotal struct {
	Day    string  `json:"date"`
	CO2eKg float64 `json:"co2e_kg"`
}

// TrendsSince aggregates daily totals from live records for days on or
// after sinceDay. Used as a fallback when rollups are not yet populated.
func (s *FootprintStore) TrendsSince(ctx context.Context, userID, sinceDay string) ([]DayTotal, error) {
	var trends []DayTotal
	err := s.store.DB.WithContext(ctx).
		Model(&FootprintRecord{}).
		Where("user_id = ? AND day >= ?", userID, sinceDay).
		Select("day, SUM(co2e_kg) AS co2e_kg").
		Group("day").
		Order("day").
		Scan(&trends).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate trends: %w", err)
	}
	return trends, nil
}

// ListByUser returns all of a user's records, newest first.
func (s *FootprintStore) ListByUser(ctx context.Context, userID string) ([]*FootprintRecord, error) {
	var records []*FootprintRecord
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_epoch DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list footprint records: %w", err)
	}
	return records, nil
}

// DeleteByUser removes all of a user's records (privacy erasure).
func (s *FootprintStore) DeleteByUser(ctx context.Context, userID string) error {
	return s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&FootprintRecord{}).Error
}

// UserDayTotal is one user's aggregated CO2e for one day.
type UserDayTotal struct {
	UserID    string
	CO2eKg    float64
	ItemCount int
}

// TotalsForDay aggregates every user's records for one day. Feeds the
// nightly rollup job.
func (s *FootprintStore) TotalsForDay(ctx context.Context, day time.Time) (map[string]UserDayTotal, error) {
	var rows []UserDayTotal
	err := s.store.DB.WithContext(ctx).
		Model(&FootprintRecord{}).
		Where("day = ?", dayOf(day)).
		Select("user_id, SUM(co2e_kg) AS co2e_kg, COUNT(*) AS item_count").
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate day totals: %w", err)
	}

	totals := make(map[string]UserDayTotal, len(rows))
	for _, row := range rows {
		totals[row.UserID] = row
	}
	return totals, nil
}
