package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/example/reviewalarm/pkg/models"
	"github.com/jmoiron/sqlx"
)

const scheduleColumns = `id, knowledge_item_id, user_id, stage, due_at, completed, created_at`

// ScheduleRepository handles database operations for review schedules and
// review records. It implements spaced_repetition.ScheduleStore.
type ScheduleRepository struct {
	db   sqlx.ExtContext
	root *sqlx.DB // nil when bound to a transaction
	now  func() time.Time
}

var _ spaced_repetition.ScheduleStore = (*ScheduleRepository)(nil)

// NewScheduleRepository creates a new repository instance
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db, root: db, now: time.Now}
}

func (r *ScheduleRepository) q(query string) string {
	return r.db.Rebind(query)
}

// InTx runs fn inside one database transaction
func (r *ScheduleRepository) InTx(ctx context.Context, fn func(spaced_repetition.ScheduleStore) error) (err error) {
	if r.root == nil {
		// already inside a transaction
		return fn(r)
	}

	tx, err := r.root.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&ScheduleRepository{db: tx, now: r.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateSchedule inserts an open schedule for an item the owner holds
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, itemID, ownerID int64, stage int, dueAt time.Time) (int64, error) {
	query := `
		INSERT INTO review_schedules (
			knowledge_item_id, user_id, stage, due_at, completed, created_at
		)
		SELECT id, user_id, ?, ?, FALSE, ?
		FROM knowledge_items
		WHERE id = ? AND user_id = ?
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowxContext(ctx, r.q(query),
		stage,
		dueAt.UTC(),
		r.now().UTC(),
		itemID,
		ownerID,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, spaced_repetition.ErrItemNotFound
	case isUniqueViolation(err):
		return 0, spaced_repetition.ErrAlreadyScheduled
	case err != nil:
		return 0, fmt.Errorf("failed to create schedule: %w", err)
	}
	return id, nil
}

func (r *ScheduleRepository) getSchedule(ctx context.Context, query string, args ...interface{}) (*models.ReviewSchedule, error) {
	var s models.ReviewSchedule
	err := sqlx.GetContext(ctx, r.db, &s, r.q(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindOpenSchedule returns the item's open schedule, or nil
func (r *ScheduleRepository) FindOpenSchedule(ctx context.Context, itemID int64) (*models.ReviewSchedule, error) {
	s, err := r.getSchedule(ctx, `
		SELECT `+scheduleColumns+`
		FROM review_schedules
		WHERE knowledge_item_id = ? AND completed = FALSE
		LIMIT 1
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to find open schedule: %w", err)
	}
	return s, nil
}

// FindSchedule returns a schedule by id, or nil. On PostgreSQL the row is
// locked until the surrounding transaction ends.
func (r *ScheduleRepository) FindSchedule(ctx context.Context, scheduleID int64) (*models.ReviewSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM review_schedules WHERE id = ?`
	if r.root == nil && r.db.DriverName() == DriverPostgres {
		query += ` FOR UPDATE`
	}
	s, err := r.getSchedule(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule: %w", err)
	}
	return s, nil
}

// FindDueSchedules returns open schedules of active items due at asOf
func (r *ScheduleRepository) FindDueSchedules(ctx context.Context, ownerID int64, asOf time.Time) ([]models.ScheduleView, error) {
	query := `
		SELECT s.id AS schedule_id, s.knowledge_item_id, s.user_id,
		       k.title, k.content, k.category, s.stage, s.due_at
		FROM review_schedules s
		JOIN knowledge_items k ON k.id = s.knowledge_item_id
		WHERE s.user_id = ?
		AND s.completed = FALSE
		AND s.due_at <= ?
		AND k.is_active = TRUE
		ORDER BY s.due_at ASC, s.id ASC
	`
	views := []models.ScheduleView{}
	if err := sqlx.SelectContext(ctx, r.db, &views, r.q(query), ownerID, asOf.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get due schedules: %w", err)
	}
	return views, nil
}

// MarkComplete closes an open schedule owned by ownerID
func (r *ScheduleRepository) MarkComplete(ctx context.Context, scheduleID, ownerID int64) (bool, error) {
	query := `
		UPDATE review_schedules SET completed = TRUE
		WHERE id = ? AND user_id = ? AND completed = FALSE
	`
	result, err := r.db.ExecContext(ctx, r.q(query), scheduleID, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to complete schedule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// CreateRecord inserts the outcome of a completed review
func (r *ScheduleRepository) CreateRecord(ctx context.Context, rec *models.ReviewRecord) (int64, error) {
	query := `
		INSERT INTO review_records (
			knowledge_item_id, schedule_id, user_id,
			effectiveness, recall_score, notes, reviewed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowxContext(ctx, r.q(query),
		rec.KnowledgeItemID,
		rec.ScheduleID,
		rec.UserID,
		rec.Effectiveness,
		rec.RecallScore,
		rec.Notes,
		rec.ReviewedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create review record: %w", err)
	}
	return id, nil
}

// ListSchedulesForItem returns the item's schedule log, oldest first
func (r *ScheduleRepository) ListSchedulesForItem(ctx context.Context, itemID, ownerID int64) ([]models.ReviewSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM review_schedules
		WHERE knowledge_item_id = ? AND user_id = ?
		ORDER BY id ASC
	`
	var schedules []models.ReviewSchedule
	if err := sqlx.SelectContext(ctx, r.db, &schedules, r.q(query), itemID, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// ListRecordsForItem returns the item's review records, oldest first
func (r *ScheduleRepository) ListRecordsForItem(ctx context.Context, itemID, ownerID int64) ([]models.ReviewRecord, error) {
	query := `
		SELECT id, knowledge_item_id, schedule_id, user_id,
		       effectiveness, recall_score, notes, reviewed_at
		FROM review_records
		WHERE knowledge_item_id = ? AND user_id = ?
		ORDER BY id ASC
	`
	var records []models.ReviewRecord
	if err := sqlx.SelectContext(ctx, r.db, &records, r.q(query), itemID, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list review records: %w", err)
	}
	return records, nil
}

func (r *ScheduleRepository) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, r.q(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

// CountDue counts open schedules of active items due at asOf
func (r *ScheduleRepository) CountDue(ctx context.Context, ownerID int64, asOf time.Time) (int, error) {
	n, err := r.count(ctx, `
		SELECT COUNT(*)
		FROM review_schedules s
		JOIN knowledge_items k ON k.id = s.knowledge_item_id
		WHERE s.user_id = ? AND s.completed = FALSE AND s.due_at <= ? AND k.is_active = TRUE
	`, ownerID, asOf.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count due schedules: %w", err)
	}
	return n, nil
}

// CountOverdue counts open schedules of active items due before the start
// of now's calendar day
func (r *ScheduleRepository) CountOverdue(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	cutoff := spaced_repetition.StartOfDay(now)
	n, err := r.count(ctx, `
		SELECT COUNT(*)
		FROM review_schedules s
		JOIN knowledge_items k ON k.id = s.knowledge_item_id
		WHERE s.user_id = ? AND s.completed = FALSE AND s.due_at < ? AND k.is_active = TRUE
	`, ownerID, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count overdue schedules: %w", err)
	}
	return n, nil
}
