// Package session provides the in-process conversational session store.
package session

import (
	"sync"

	"github.com/thebtf/ecotrace/pkg/models"
)

const (
	// highWaterMark is the history length that triggers compaction after
	// an append.
	highWaterMark = 20

	// compactThreshold is the minimum history length compaction acts on.
	compactThreshold = 12

	// keepHead and keepTail bound the retained window around the marker.
	keepHead = 2
	keepTail = 10

	// compactionMarker stands in for the summarized middle of the history.
	compactionMarker = "[Previous context compacted]"
)

// record holds one user's session state. The embedded mutex serializes
// append/compact cycles for concurrent pipelines of the same user.
type record struct {
	mu      sync.Mutex
	history []models.HistoryEntry
}

// Manager owns per-user session records for the lifetime of the process.
// State is not persisted; it is a non-durable cache of conversational
// context, lazily created on first append.
type Manager struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{records: make(map[string]*record)}
}

// getOrCreate returns the live record for a user, creating it if needed.
func (m *Manager) getOrCreate(userID string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[userID]
	if !ok {
		r = &record{}
		m.records[userID] = r
	}
	return r
}

// lookup returns the live record for a user, or nil. Unlike getOrCreate
// it never allocates, so read paths do not grow the map.
func (m *Manager) lookup(userID string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[userID]
}

// History returns a snapshot of the user's history. The returned slice is
// a copy; callers cannot mutate session state through it.
func (m *Manager) History(userID string) []models.HistoryEntry {
	r := m.lookup(userID)
	if r == nil {
		return []models.HistoryEntry{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.HistoryEntry, len(r.history))
	copy(out, r.history)
	return out
}

// AppendHistory appends one entry to the user's history and compacts when
// the history grows past the high-water mark. The append and any resulting
// compaction are atomic with respect to other appenders for the same user.
func (m *Manager) AppendHistory(userID string, role models.Role, content string) {
	r := m.getOrCreate(userID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, models.HistoryEntry{Role: role, Content: content})
	if len(r.history) > highWaterMark {
		r.history = compact(r.history)
	}
}

// Compact applies the compaction policy to the user's history regardless
// of the high-water mark. Idempotent on an already-compacted history.
func (m *Manager) Compact(userID string) {
	r := m.lookup(userID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = compact(r.history)
}

// compact keeps the first keepHead entries, a synthetic system marker, and
// the last keepTail entries. Histories at or below compactThreshold are
// returned unchanged. Runs in O(len(history)).
func compact(history []models.HistoryEntry) []models.HistoryEntry {
	if len(history) <= compactThreshold {
		return history
	}

	out := make([]models.HistoryEntry, 0, keepHead+1+keepTail)
	out = append(out, history[:keepHead]...)
	out = append(out, models.HistoryEntry{Role: models.RoleSystem, Content: compactionMarker})
	out = append(out, history[len(history)-keepTail:]...)
	return out
}

// Clear removes all session state for a user. A subsequent access
// reinitializes an empty record.
func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
}

// UserCount returns the number of users with live session records.
func (m *Manager) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
