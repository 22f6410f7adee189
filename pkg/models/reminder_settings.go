package models

import "time"

// ReminderSettings stores the per-user reminder preferences
type ReminderSettings struct {
	UserID          int64     `json:"user_id" db:"user_id"`
	IntervalSeconds int       `json:"interval_seconds" db:"interval_seconds"`
	Enabled         bool      `json:"enabled" db:"enabled"`
	StartHour       int       `json:"start_hour" db:"start_hour"`
	EndHour         int       `json:"end_hour" db:"end_hour"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
