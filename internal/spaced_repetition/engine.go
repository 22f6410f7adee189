package spaced_repetition

import (
	"context"
	"math"
	"time"

	"github.com/example/reviewalarm/pkg/models"
	"go.uber.org/zap"
)

// Effectiveness and recall bounds
const (
	MinEffectiveness = 1
	MaxEffectiveness = 5
	MinRecallScore   = 0.0
	MaxRecallScore   = 100.0

	// PromoteThreshold is the lowest effectiveness that moves an item up a stage
	PromoteThreshold = 4
	// DemoteThreshold is the highest effectiveness that moves an item down a stage
	DemoteThreshold = 1
)

// Engine advances knowledge items through the stage ladder. It is
// synchronous and holds no mutable state of its own; serialization of
// writes per item is delegated to the store's transactions.
type Engine struct {
	stages *StageTable
	store  ScheduleStore
	logger *zap.Logger
}

// NewEngine creates an engine over the given stage table and store
func NewEngine(stages *StageTable, store ScheduleStore, logger *zap.Logger) *Engine {
	if stages == nil {
		stages = DefaultStages()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		stages: stages,
		store:  store,
		logger: logger,
	}
}

// Stages returns the stage table the engine schedules with
func (e *Engine) Stages() *StageTable {
	return e.stages
}

// CompleteRequest carries the outcome of one review
type CompleteRequest struct {
	ScheduleID    int64
	OwnerID       int64
	Effectiveness int
	RecallScore   float64
	Note          string
	Now           time.Time
}

// Outcome describes what a completed review changed
type Outcome struct {
	Record        models.ReviewRecord    `json:"record"`
	Completed     models.ReviewSchedule  `json:"completed"`
	Next          *models.ReviewSchedule `json:"next,omitempty"`
	PreviousStage int                    `json:"previous_stage"`
	NextStage     int                    `json:"next_stage"`
	Mastered      bool                   `json:"mastered"`
}

// NextStage applies the stage-transition rule. A result equal to
// stageCount means the item is mastered.
func NextStage(current, effectiveness, stageCount int) int {
	switch {
	case effectiveness >= PromoteThreshold:
		current++
	case effectiveness <= DemoteThreshold:
		current--
	}
	if current < 0 {
		return 0
	}
	if current > stageCount {
		return stageCount
	}
	return current
}

// ScheduleFirstReview seeds the stage-0 schedule of a new item
func (e *Engine) ScheduleFirstReview(ctx context.Context, itemID, ownerID int64, now time.Time) (*models.ReviewSchedule, error) {
	sched, err := e.openSchedule(ctx, itemID, ownerID, 0, now.Add(e.stages.DelayFor(0)), now)
	if err != nil {
		return nil, err
	}
	e.logger.Info("first review scheduled",
		zap.Int64("item_id", itemID),
		zap.Int64("schedule_id", sched.ID),
		zap.Time("due_at", sched.DueAt))
	return sched, nil
}

// PullForward forces an ad-hoc stage-0 review due after delay
func (e *Engine) PullForward(ctx context.Context, itemID, ownerID int64, now time.Time, delay time.Duration) (*models.ReviewSchedule, error) {
	if delay < 0 {
		return nil, &ValidationError{Field: "delay", Value: delay, Reason: "must not be negative"}
	}
	sched, err := e.openSchedule(ctx, itemID, ownerID, 0, now.Add(delay), now)
	if err != nil {
		return nil, err
	}
	e.logger.Info("review pulled forward",
		zap.Int64("item_id", itemID),
		zap.Int64("schedule_id", sched.ID),
		zap.Time("due_at", sched.DueAt))
	return sched, nil
}

func (e *Engine) openSchedule(ctx context.Context, itemID, ownerID int64, stage int, dueAt, now time.Time) (*models.ReviewSchedule, error) {
	var created *models.ReviewSchedule
	err := e.store.InTx(ctx, func(tx ScheduleStore) error {
		open, err := tx.FindOpenSchedule(ctx, itemID)
		if err != nil {
			return storageError("find open schedule", err)
		}
		// schedules carry their item's owner, so a foreign open schedule
		// means a foreign item
		if open != nil && open.UserID != ownerID {
			return ErrItemNotFound
		}
		if open != nil {
			return ErrAlreadyScheduled
		}

		id, err := tx.CreateSchedule(ctx, itemID, ownerID, stage, dueAt)
		if err != nil {
			return classify("create schedule", err)
		}
		created = &models.ReviewSchedule{
			ID:              id,
			KnowledgeItemID: itemID,
			UserID:          ownerID,
			Stage:           stage,
			DueAt:           dueAt,
			CreatedAt:       now,
		}
		return nil
	})
	if err != nil {
		return nil, classify("open schedule", err)
	}
	return created, nil
}

func validateCompletion(req CompleteRequest) error {
	if req.Effectiveness < MinEffectiveness || req.Effectiveness > MaxEffectiveness {
		return &ValidationError{Field: "effectiveness", Value: req.Effectiveness, Reason: "must be between 1 and 5"}
	}
	if math.IsNaN(req.RecallScore) || req.RecallScore < MinRecallScore || req.RecallScore > MaxRecallScore {
		return &ValidationError{Field: "recall_score", Value: req.RecallScore, Reason: "must be between 0 and 100"}
	}
	return nil
}

// CompleteReview records a review outcome, closes the schedule and opens
// the next one, all in one transaction. Promotion past the last stage
// masters the item instead of opening a schedule.
func (e *Engine) CompleteReview(ctx context.Context, req CompleteRequest) (*Outcome, error) {
	if err := validateCompletion(req); err != nil {
		return nil, err
	}

	var out Outcome
	err := e.store.InTx(ctx, func(tx ScheduleStore) error {
		sched, err := tx.FindSchedule(ctx, req.ScheduleID)
		if err != nil {
			return storageError("find schedule", err)
		}
		switch {
		case sched == nil:
			return ErrScheduleNotFound
		case sched.UserID != req.OwnerID:
			return ErrOwnerMismatch
		case sched.Completed:
			return ErrAlreadyCompleted
		}
		if _, err := e.stages.Lookup(sched.Stage); err != nil {
			return err
		}

		record := models.ReviewRecord{
			KnowledgeItemID: sched.KnowledgeItemID,
			ScheduleID:      sched.ID,
			UserID:          req.OwnerID,
			Effectiveness:   req.Effectiveness,
			RecallScore:     req.RecallScore,
			Notes:           req.Note,
			ReviewedAt:      req.Now,
		}
		record.ID, err = tx.CreateRecord(ctx, &record)
		if err != nil {
			return storageError("create record", err)
		}

		ok, err := tx.MarkComplete(ctx, sched.ID, req.OwnerID)
		if err != nil {
			return storageError("mark complete", err)
		}
		if !ok {
			// lost a race with another completion of the same schedule
			return ErrAlreadyCompleted
		}
		sched.Completed = true

		next := NextStage(sched.Stage, req.Effectiveness, e.stages.StageCount())
		out = Outcome{
			Record:        record,
			Completed:     *sched,
			PreviousStage: sched.Stage,
			NextStage:     next,
		}
		if next >= e.stages.StageCount() {
			out.Mastered = true
			return nil
		}

		dueAt := req.Now.Add(e.stages.DelayFor(next))
		id, err := tx.CreateSchedule(ctx, sched.KnowledgeItemID, req.OwnerID, next, dueAt)
		if err != nil {
			return classify("create next schedule", err)
		}
		out.Next = &models.ReviewSchedule{
			ID:              id,
			KnowledgeItemID: sched.KnowledgeItemID,
			UserID:          req.OwnerID,
			Stage:           next,
			DueAt:           dueAt,
			CreatedAt:       req.Now,
		}
		return nil
	})
	if err != nil {
		return nil, classify("complete review", err)
	}

	if out.Mastered {
		e.logger.Info("item mastered",
			zap.Int64("item_id", out.Completed.KnowledgeItemID),
			zap.Int64("schedule_id", out.Completed.ID))
	} else {
		e.logger.Info("review completed",
			zap.Int64("item_id", out.Completed.KnowledgeItemID),
			zap.Int64("schedule_id", out.Completed.ID),
			zap.Int("effectiveness", req.Effectiveness),
			zap.Int("from_stage", out.PreviousStage),
			zap.Int("to_stage", out.NextStage),
			zap.Time("next_due_at", out.Next.DueAt))
	}
	return &out, nil
}

// ItemStatus derives the review state of an item from its schedule log
func (e *Engine) ItemStatus(ctx context.Context, itemID, ownerID int64) (Status, error) {
	history, err := e.store.ListSchedulesForItem(ctx, itemID, ownerID)
	if err != nil {
		return Status{}, storageError("list schedules", err)
	}
	return DeriveStatus(history), nil
}

// FindDueSchedules returns the owner's open schedules due at asOf
func (e *Engine) FindDueSchedules(ctx context.Context, ownerID int64, asOf time.Time) ([]models.ScheduleView, error) {
	due, err := e.store.FindDueSchedules(ctx, ownerID, asOf)
	if err != nil {
		return nil, storageError("find due schedules", err)
	}
	return due, nil
}

// CountDue counts the owner's open schedules due at asOf
func (e *Engine) CountDue(ctx context.Context, ownerID int64, asOf time.Time) (int, error) {
	n, err := e.store.CountDue(ctx, ownerID, asOf)
	if err != nil {
		return 0, storageError("count due", err)
	}
	return n, nil
}

// CountOverdue counts the owner's open schedules that were due before today
func (e *Engine) CountOverdue(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	n, err := e.store.CountOverdue(ctx, ownerID, now)
	if err != nil {
		return 0, storageError("count overdue", err)
	}
	return n, nil
}
