package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/ecotrace/pkg/models"
)

// dayOf formats a time as the rollup day key.
func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// FootprintRecord is the durable output of one successful item pipeline.
// Created exactly once per item, never updated.
type FootprintRecord struct {
	ID                       int64                  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                   string                 `gorm:"index;not null" json:"user_id"`
	ItemName                 string                 `gorm:"not null" json:"item_name"`
	Category                 string                 `gorm:"type:text;index" json:"category"`
	ClassificationConfidence float64                `gorm:"type:real;default:0" json:"classification_confidence"`
	Quantity                 float64                `gorm:"type:real;not null" json:"quantity"`
	Unit                     string                 `gorm:"not null" json:"unit"`
	CO2eKg                   float64                `gorm:"column:co2e_kg;type:real;not null" json:"co2e_kg"`
	Suggestions              models.JSONStringArray `gorm:"type:text" json:"suggestions"`
	Day                      string                 `gorm:"index:idx_footprints_user_day,priority:2;index" json:"day"`
	CreatedAt                string                 `gorm:"not null" json:"created_at"`
	CreatedAtEpoch           int64                  `gorm:"index:idx_footprints_created,sort:desc;not null" json:"created_at_epoch"`
}

func (FootprintRecord) TableName() string { return "footprint_records" }

// BeforeCreate hook to ensure timestamps and the day key are set.
func (r *FootprintRecord) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = now.UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = now.Format(time.RFC3339)
	}
	if r.Day == "" {
		r.Day = dayOf(time.UnixMilli(r.CreatedAtEpoch))
	}
	return nil
}

// UserGoal is a CO2e reduction target. The active goal has no end date;
// setting a new goal archives the previous one.
type UserGoal struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string         `gorm:"index;not null" json:"user_id"`
	TargetCO2e     float64        `gorm:"column:target_co2e;type:real;not null" json:"target_co2e"`
	Period         string         `gorm:"type:text;default:'monthly';check:period IN ('weekly', 'monthly', 'yearly')" json:"period"`
	StartedAt      string         `gorm:"not null" json:"started_at"`
	StartedAtEpoch int64          `gorm:"not null" json:"started_at_epoch"`
	EndedAt        sql.NullString `json:"ended_at,omitempty"`
	EndedAtEpoch   sql.NullInt64  `gorm:"index:idx_goals_active,priority:2" json:"ended_at_epoch,omitempty"`
}

func (UserGoal) TableName() string { return "user_goals" }

// BeforeCreate hook to ensure timestamps are set.
func (g *UserGoal) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if g.StartedAtEpoch == 0 {
		g.StartedAtEpoch = now.UnixMilli()
	}
	if g.StartedAt == "" {
		g.StartedAt = now.Format(time.RFC3339)
	}
	if g.Period == "" {
		g.Period = "monthly"
	}
	return nil
}

// UserPreference is one durable preference key/value pair.
type UserPreference struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"uniqueIndex:idx_prefs_user_key,priority:1;not null" json:"user_id"`
	Key    string `gorm:"uniqueIndex:idx_prefs_user_key,priority:2;not null" json:"key"`
	Value  string `gorm:"not null" json:"value"`
}

func (UserPreference) TableName() string { return "user_preferences" }

// MemoryLog is an append-only long-term memory entry. Never mutated;
// deleted only through bulk privacy erasure.
type MemoryLog struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string `gorm:"index;not null" json:"user_id"`
	Role           string `gorm:"type:text;check:role IN ('user', 'assistant', 'system');not null" json:"role"`
	Content        string `gorm:"type:text;not null" json:"content"`
	CreatedAt      string `gorm:"not null" json:"created_at"`
	CreatedAtEpoch int64  `gorm:"index:idx_memory_logs_created,sort:desc;not null" json:"created_at_epoch"`
}

func (MemoryLog) TableName() string { return "memory_logs" }

// BeforeCreate hook to ensure timestamps are set.
func (l *MemoryLog) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if l.CreatedAtEpoch == 0 {
		l.CreatedAtEpoch = now.UnixMilli()
	}
	if l.CreatedAt == "" {
		l.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}

// User is a profile row keyed by the external auth subject.
type User struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID          string         `gorm:"uniqueIndex;not null" json:"external_id"`
	Email               sql.NullString `json:"email,omitempty"`
	Name                sql.NullString `json:"name,omitempty"`
	OnboardingCompleted bool           `gorm:"default:false" json:"onboarding_completed"`
	CreatedAt           string         `gorm:"not null" json:"created_at"`
	CreatedAtEpoch      int64          `gorm:"not null" json:"created_at_epoch"`
	LastLoginAt         string         `json:"last_login_at"`
	LastLoginAtEpoch    int64          `json:"last_login_at_epoch"`
}

func (User) TableName() string { return "users" }

// BeforeCreate hook to ensure timestamps are set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAtEpoch == 0 {
		u.CreatedAtEpoch = now.UnixMilli()
	}
	if u.CreatedAt == "" {
		u.CreatedAt = now.Format(time.RFC3339)
	}
	if u.LastLoginAtEpoch == 0 {
		u.LastLoginAtEpoch = now.UnixMilli()
	}
	if u.LastLoginAt == "" {
		u.LastLoginAt = now.Format(time.RFC3339)
	}
	return nil
}

// DailyRollup is a precomputed per-user per-day CO2e total powering the
// dashboard trends endpoint.
type DailyRollup struct {
	ID             int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string  `gorm:"uniqueIndex:idx_rollups_user_day,priority:1;not null" json:"user_id"`
	Day            string  `gorm:"uniqueIndex:idx_rollups_user_day,priority:2;not null" json:"day"`
	CO2eKg         float64 `gorm:"column:co2e_kg;type:real;not null" json:"co2e_kg"`
	ItemCount      int     `gorm:"default:0" json:"item_count"`
	UpdatedAt      string  `gorm:"not null" json:"updated_at"`
	UpdatedAtEpoch int64   `gorm:"not null" json:"updated_at_epoch"`
}

func (DailyRollup) TableName() string { return "daily_rollups" }

// BeforeSave hook to refresh the update timestamps.
func (d *DailyRollup) BeforeSave(tx *gorm.DB) error {
	now := time.Now()
	d.UpdatedAtEpoch = now.UnixMilli()
	d.UpdatedAt = now.Format(time.RFC3339)
	return nil
}
