package models

import "time"

// ReviewSchedule is a single pending or completed review of an item at one stage
type ReviewSchedule struct {
	ID              int64     `json:"id" db:"id"`
	KnowledgeItemID int64     `json:"knowledge_item_id" db:"knowledge_item_id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	Stage           int       `json:"stage" db:"stage"`
	DueAt           time.Time `json:"due_at" db:"due_at"`
	Completed       bool      `json:"completed" db:"completed"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// IsDue reports whether the schedule is open and due at asOf
func (s ReviewSchedule) IsDue(asOf time.Time) bool {
	return !s.Completed && !s.DueAt.After(asOf)
}
