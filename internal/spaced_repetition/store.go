package spaced_repetition

import (
	"context"
	"time"

	"github.com/example/reviewalarm/pkg/models"
)

// ScheduleStore is the persistence the engine needs. Implementations must
// scope list and count queries by owner.
type ScheduleStore interface {
	// CreateSchedule inserts an open schedule for an item owned by ownerID.
	// It fails with ErrItemNotFound when the item does not belong to the
	// owner, and with ErrAlreadyScheduled when an open schedule already exists.
	CreateSchedule(ctx context.Context, itemID, ownerID int64, stage int, dueAt time.Time) (int64, error)

	// FindOpenSchedule returns the open schedule of an item, or nil
	FindOpenSchedule(ctx context.Context, itemID int64) (*models.ReviewSchedule, error)

	// FindSchedule returns a schedule by id, or nil
	FindSchedule(ctx context.Context, scheduleID int64) (*models.ReviewSchedule, error)

	// FindDueSchedules returns open schedules due at asOf, earliest first,
	// ties broken by schedule id
	FindDueSchedules(ctx context.Context, ownerID int64, asOf time.Time) ([]models.ScheduleView, error)

	// MarkComplete flips an open schedule to completed. It returns false when
	// the schedule is missing, already completed or owned by someone else.
	MarkComplete(ctx context.Context, scheduleID, ownerID int64) (bool, error)

	CreateRecord(ctx context.Context, record *models.ReviewRecord) (int64, error)

	// ListSchedulesForItem returns the item's schedule log in creation order
	ListSchedulesForItem(ctx context.Context, itemID, ownerID int64) ([]models.ReviewSchedule, error)

	CountDue(ctx context.Context, ownerID int64, asOf time.Time) (int, error)
	CountOverdue(ctx context.Context, ownerID int64, now time.Time) (int, error)

	// InTx runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ScheduleStore) error) error
}
