package models

import "time"

// DailyReviewStat aggregates the reviews recorded on one calendar day
type DailyReviewStat struct {
	Date           time.Time `json:"date"`
	Reviews        int       `json:"reviews"`
	AvgRecallScore float64   `json:"avg_recall_score"`
}

// Overview is the summary shown on the statistics screen
type Overview struct {
	TotalItems     int        `json:"total_items"`
	MasteredItems  int        `json:"mastered_items"`
	DueToday       int        `json:"due_today"`
	Overdue        int        `json:"overdue"`
	CompletionRate float64    `json:"completion_rate_30d"`
	StreakDays     int        `json:"streak_days"`
	Efficiency     float64    `json:"learning_efficiency_7d"`
	LastReviewAt   *time.Time `json:"last_review_at,omitempty"`
}
