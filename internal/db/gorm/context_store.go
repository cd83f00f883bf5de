package gorm

import (
	"context"
	"fmt"

	"github.com/thebtf/ecotrace/pkg/models"
)

// ContextStore provides long-term user context: read-only retrieval of
// preferences and goals, append-only memory logging.
type ContextStore struct {
	store *Store
}

// NewContextStore creates a new context store.
func NewContextStore(store *Store) *ContextStore {
	return &ContextStore{store: store}
}

// FetchContext aggregates all preference pairs and active goals for a
// user. Users with no stored state get an empty (non-nil) context.
func (s *ContextStore) FetchContext(ctx context.Context, userID string) (*models.UserContext, error) {
	userCtx := models.EmptyUserContext()

	var prefs []UserPreference
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&prefs).Error
	if err != nil {
		return nil, fmt.Errorf("fetch preferences: %w", err)
	}
	for _, p := range prefs {
		userCtx.Preferences[p.Key] = p.Value
	}

	var goals []UserGoal
	err = s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at_epoch").
		Find(&goals).Error
	if err != nil {
		return nil, fmt.Errorf("fetch goals: %w", err)
	}
	for _, g := range goals {
		userCtx.Goals = append(userCtx.Goals, models.Goal{
			TargetCO2e: g.TargetCO2e,
			Period:     g.Period,
		})
	}

	return userCtx, nil
}

// AppendMemoryLog durably appends one long-term memory entry. Callers must
// treat a returned error as fatal for the enclosing pipeline step; entries
// are never silently dropped.
func (s *ContextStore) AppendMemoryLog(ctx context.Context, userID string, role models.Role, content string) error {
	entry := &MemoryLog{
		UserID:  userID,
		Role:    string(role),
		Content: content,
	}
	if err := s.store.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append memory log: %w", err)
	}
	return nil
}

// SetPreference upserts one preference pair.
func (s *ContextStore) SetPreference(ctx context.Context, userID, key, value string) error {
	pref := UserPreference{UserID: userID, Key: key, Value: value}
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key).
		Assign(map[string]interface{}{"value": value}).
		FirstOrCreate(&pref).Error
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

// ListMemoryLogs returns a user's memory log, newest first.
func (s *ContextStore) ListMemoryLogs(ctx context.Context, userID string) ([]*MemoryLog, error) {
	var logs []*MemoryLog
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_epoch DESC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list memory logs: %w", err)
	}
	return logs, nil
}

// ListPreferences returns a user's raw preference rows.
func (s *ContextStore) ListPreferences(ctx context.Context, userID string) ([]*UserPreference, error) {
	var prefs []*UserPreference
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("key").
		Find(&prefs).Error
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	return prefs, nil
}

// DeleteByUser removes a user's preferences and memory logs (privacy
// erasure, the one sanctioned path for deleting memory entries).
func (s *ContextStore) DeleteByUser(ctx context.Context, userID string) error {
	if err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&UserPreference{}).Error; err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	if err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&MemoryLog{}).Error; err != nil {
		return fmt.Errorf("delete memory logs: %w", err)
	}
	return nil
}
