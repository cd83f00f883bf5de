package gorm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/ecotrace/pkg/models"
)

func insertTestRecord(t *testing.T, s *FootprintStore, userID, name, category string, co2eKg float64) int64 {
	t.Helper()

	id, err := s.InsertRecord(context.Background(), userID,
		models.Item{Name: name, Quantity: 1, Unit: "kg"},
		models.Classification{Category: models.ParseCategory(category), Confidence: 0.9},
		co2eKg,
		[]string{"buy local"},
	)
	require.NoError(t, err)
	return id
}

func TestInsertRecord(t *testing.T) {
	store := testStore(t)
	footprints := NewFootprintStore(store)

	id := insertTestRecord(t, footprints, "user-1", "Beef Steak", "Food", 27.5)
	assert.Positive(t, id)

	records, err := footprints.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Beef Steak", rec.ItemName)
	assert.Equal(t, "Food", rec.Category)
	assert.InDelta(t, 27.5, rec.CO2eKg, 0.001)
	assert.Equal(t, []string{"buy local"}, []string(rec.Suggestions))
	assert.NotEmpty(t, rec.CreatedAt)
	assert.NotZero(t, rec.CreatedAtEpoch)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), rec.Day)
}

func TestStats(t *testing.T) {
	store := testStore(t)
	footprints := NewFootprintStore(store)

	insertTestRecord(t, footprints, "user-1", "Beef", "Food", 27.0)
	insertTestRecord(t, footprints, "user-1", "Cheese", "Food", 9.0)
	insertTestRecord(t, footprints, "user-1", "Flight", "Transport", 180.0)
	insertTestRecord(t, footprints, "user-2", "Laptop", "Electronics", 300.0)

	total, byCategory, err := footprints.Stats(context.Background(), "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 216.0, total, 0.001)
	require.Len(t, byCategory, 2)
	assert.Equal(t, "Food", byCategory[0].Category)
	assert.InDelta(t, 36.0, byCategory[0].CO2eKg, 0.001)
	assert.Equal(t, "Transport", byCategory[1].Category)
	assert.InDelta(t, 180.0, byCategory[1].CO2eKg, 0.001)
}

func TestStatsEmptyUser(t *testing.T) {
	store := testStore(t)
	footprints := NewFootprintStore(store)

	total, byCategory, err := footprints.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, byCategory)
}

func TestTrendsSince(t *testing.T) {
	store := testStore(t)
	footprints := NewFootprintStore(store)

	insertTestRecord(t, footprints, "user-1", "Beef", "Food", 27.0)
	insertTestRecord(t, footprints, "user-1", "Cheese", "Food", 9.0)

	today := time.Now().UTC().Format("2006-01-02")
	trends, err := footprints.TrendsSince(context.Background(), "user-1", today)
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, today, trends[0].Day)
	assert.InDelta(t, 36.0, trends[0].CO2eKg, 0.001)

	// Window starting tomorrow excludes today's records
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	trends, err = footprints.TrendsSince(context.Background(), "user-1", tomorrow)
	require.NoError(t, err)
	assert.Empty(t, trends)
}

func TestTotalsForDay(t *testing.T) {
	store := testStore(t)
	footprints := NewFootprintStore(store)

	insertTestRecord(t, footprints, "user-1", "Beef", "Food", 27.0)
	insertTestRecord(t, footprints, "user-1", "Cheese", "Food", 9.0)
	insertTestRecord(t, footprints, "user-2", "Flight", "Transport", 180.0)

	totals, err := footprints.TotalsForDay(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.InDelta(t, 36.0, totals["user-1"].CO2eKg, 0.001)
	assert.Equal(t, 2, totals["user-1"].ItemCount)
	assert.InDelta(t, 180.0, totals["user-2"].CO2eKg, 0.001)
	assert.Equal(t, 1, totals["user-2"].ItemCount)
}

func TestDeleteByUser(t *testing.T) {
	store := testStore(t)
	footprints := NewFootprintStore(store)

	insertTestRecord(t, footprints, "user-1", "Beef", "Food", 27.0)
	insertTestRecord(t, footprints, "user-2", "Flight", "Transport", 180.0)

	require.NoError(t, footprints.DeleteByUser(context.Background(), "user-1"))

	records, err := footprints.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)

	// Other users keep their data
	records, err = footprints.ListByUser(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
