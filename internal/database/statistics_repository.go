package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RecallSample is one review's time and scores
type RecallSample struct {
	ReviewedAt    time.Time `db:"reviewed_at"`
	Effectiveness int       `db:"effectiveness"`
	RecallScore   float64   `db:"recall_score"`
}

// WindowCounts holds schedule totals for a due-date window
type WindowCounts struct {
	Total     int `db:"total"`
	Completed int `db:"completed"`
}

// StatisticsRepository runs the aggregate queries behind the statistics screen.
// Calendar-day bucketing is left to the caller so it can use local time on
// both SQLite and PostgreSQL.
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository creates a new repository instance
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// ReviewTimes returns the times of the user's reviews since the given
// instant, newest first
func (r *StatisticsRepository) ReviewTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	query := `
		SELECT reviewed_at FROM review_records
		WHERE user_id = ? AND reviewed_at >= ?
		ORDER BY reviewed_at DESC
	`
	var times []time.Time
	if err := r.db.SelectContext(ctx, &times, r.db.Rebind(query), userID, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get review times: %w", err)
	}
	return times, nil
}

// RecallSamples returns the scores of reviews since the given instant,
// oldest first
func (r *StatisticsRepository) RecallSamples(ctx context.Context, userID int64, since time.Time) ([]RecallSample, error) {
	query := `
		SELECT reviewed_at, effectiveness, recall_score FROM review_records
		WHERE user_id = ? AND reviewed_at >= ?
		ORDER BY reviewed_at ASC
	`
	var samples []RecallSample
	if err := r.db.SelectContext(ctx, &samples, r.db.Rebind(query), userID, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get recall samples: %w", err)
	}
	return samples, nil
}

// LastReviewAt returns the time of the user's latest review, or nil
func (r *StatisticsRepository) LastReviewAt(ctx context.Context, userID int64) (*time.Time, error) {
	query := `
		SELECT reviewed_at FROM review_records
		WHERE user_id = ?
		ORDER BY reviewed_at DESC
		LIMIT 1
	`
	var t time.Time
	err := r.db.GetContext(ctx, &t, r.db.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last review: %w", err)
	}
	return &t, nil
}

// ScheduleWindow counts schedules of active items due within [from, to]
// and how many of them were completed
func (r *StatisticsRepository) ScheduleWindow(ctx context.Context, userID int64, from, to time.Time) (WindowCounts, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN s.completed THEN 1 ELSE 0 END), 0) AS completed
		FROM review_schedules s
		JOIN knowledge_items k ON k.id = s.knowledge_item_id
		WHERE s.user_id = ? AND s.due_at >= ? AND s.due_at <= ? AND k.is_active = TRUE
	`
	var counts WindowCounts
	if err := r.db.GetContext(ctx, &counts, r.db.Rebind(query), userID, from.UTC(), to.UTC()); err != nil {
		return WindowCounts{}, fmt.Errorf("failed to count schedule window: %w", err)
	}
	return counts, nil
}

type groupCount struct {
	Key   string `db:"bucket"`
	Count int    `db:"n"`
}

type intGroupCount struct {
	Key   int `db:"bucket"`
	Count int `db:"n"`
}

// OpenStageCounts counts open schedules of active items per stage
func (r *StatisticsRepository) OpenStageCounts(ctx context.Context, userID int64) (map[int]int, error) {
	query := `
		SELECT s.stage AS bucket, COUNT(*) AS n
		FROM review_schedules s
		JOIN knowledge_items k ON k.id = s.knowledge_item_id
		WHERE s.user_id = ? AND s.completed = FALSE AND k.is_active = TRUE
		GROUP BY s.stage
	`
	return r.intGroups(ctx, "stage counts", query, userID)
}

// EffectivenessCounts counts review records per effectiveness score
func (r *StatisticsRepository) EffectivenessCounts(ctx context.Context, userID int64) (map[int]int, error) {
	query := `
		SELECT effectiveness AS bucket, COUNT(*) AS n
		FROM review_records
		WHERE user_id = ?
		GROUP BY effectiveness
	`
	return r.intGroups(ctx, "effectiveness counts", query, userID)
}

func (r *StatisticsRepository) intGroups(ctx context.Context, what, query string, args ...interface{}) (map[int]int, error) {
	var rows []intGroupCount
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}

// CategoryCounts counts active items per category
func (r *StatisticsRepository) CategoryCounts(ctx context.Context, userID int64) (map[string]int, error) {
	query := `
		SELECT category AS bucket, COUNT(*) AS n
		FROM knowledge_items
		WHERE user_id = ? AND is_active = TRUE
		GROUP BY category
	`
	var rows []groupCount
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("failed to get category counts: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Key] += row.Count
	}
	return counts, nil
}

// CountActiveItems counts the user's active knowledge items
func (r *StatisticsRepository) CountActiveItems(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM knowledge_items WHERE user_id = ? AND is_active = TRUE`
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), userID); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// CountMasteredItems counts active items that have schedules but none open
func (r *StatisticsRepository) CountMasteredItems(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM knowledge_items k
		WHERE k.user_id = ? AND k.is_active = TRUE
		AND EXISTS (SELECT 1 FROM review_schedules s WHERE s.knowledge_item_id = k.id)
		AND NOT EXISTS (
			SELECT 1 FROM review_schedules s
			WHERE s.knowledge_item_id = k.id AND s.completed = FALSE
		)
	`
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), userID); err != nil {
		return 0, fmt.Errorf("failed to count mastered items: %w", err)
	}
	return n, nil
}
