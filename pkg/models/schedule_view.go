package models

import "time"

// ScheduleView is the read-only shape of a due schedule joined with its item.
// The poller, the API and the CLI all consume this one type.
type ScheduleView struct {
	ScheduleID      int64     `json:"schedule_id" db:"schedule_id"`
	KnowledgeItemID int64     `json:"knowledge_item_id" db:"knowledge_item_id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	Title           string    `json:"title" db:"title"`
	Content         string    `json:"content" db:"content"`
	Category        string    `json:"category" db:"category"`
	Stage           int       `json:"stage" db:"stage"`
	DueAt           time.Time `json:"due_at" db:"due_at"`
}

// Preview returns the content cut to max runes, with an ellipsis when cut
func (v ScheduleView) Preview(max int) string {
	runes := []rune(v.Content)
	if len(runes) <= max {
		return v.Content
	}
	return string(runes[:max]) + "..."
}
