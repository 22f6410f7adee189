package models

import "time"

// ReviewRecord is the immutable outcome of one completed schedule
type ReviewRecord struct {
	ID              int64     `json:"id" db:"id"`
	KnowledgeItemID int64     `json:"knowledge_item_id" db:"knowledge_item_id"`
	ScheduleID      int64     `json:"schedule_id" db:"schedule_id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	Effectiveness   int       `json:"effectiveness" db:"effectiveness"` // 1-5
	RecallScore     float64   `json:"recall_score" db:"recall_score"`   // 0-100
	Notes           string    `json:"notes" db:"notes"`
	ReviewedAt      time.Time `json:"reviewed_at" db:"reviewed_at"`
}
