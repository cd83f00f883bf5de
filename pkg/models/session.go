package models

// Role identifies the author of a conversational history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// HistoryEntry is one turn of per-user conversational history.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
