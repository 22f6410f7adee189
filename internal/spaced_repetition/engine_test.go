package spaced_repetition

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/example/reviewalarm/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const (
	owner    int64 = 1
	stranger int64 = 2
)

// memStore is an in-memory ScheduleStore. InTx snapshots state and restores
// it when the callback fails.
type memStore struct {
	items     map[int64]int64 // item id -> owner id
	schedules []models.ReviewSchedule
	records   []models.ReviewRecord
	lastID    int64

	failCreateSchedule error
	failCreateRecord   error
}

func newMemStore(items ...int64) *memStore {
	s := &memStore{items: make(map[int64]int64)}
	for _, id := range items {
		s.items[id] = owner
	}
	return s
}

func (s *memStore) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *memStore) CreateSchedule(_ context.Context, itemID, ownerID int64, stage int, dueAt time.Time) (int64, error) {
	if s.failCreateSchedule != nil {
		return 0, s.failCreateSchedule
	}
	if o, ok := s.items[itemID]; !ok || o != ownerID {
		return 0, ErrItemNotFound
	}
	for _, sc := range s.schedules {
		if sc.KnowledgeItemID == itemID && !sc.Completed {
			return 0, ErrAlreadyScheduled
		}
	}
	id := s.nextID()
	s.schedules = append(s.schedules, models.ReviewSchedule{
		ID: id, KnowledgeItemID: itemID, UserID: ownerID, Stage: stage, DueAt: dueAt,
	})
	return id, nil
}

func (s *memStore) FindOpenSchedule(_ context.Context, itemID int64) (*models.ReviewSchedule, error) {
	for _, sc := range s.schedules {
		if sc.KnowledgeItemID == itemID && !sc.Completed {
			sc := sc
			return &sc, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindSchedule(_ context.Context, id int64) (*models.ReviewSchedule, error) {
	for _, sc := range s.schedules {
		if sc.ID == id {
			sc := sc
			return &sc, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindDueSchedules(_ context.Context, ownerID int64, asOf time.Time) ([]models.ScheduleView, error) {
	var out []models.ScheduleView
	for _, sc := range s.schedules {
		if sc.UserID == ownerID && sc.IsDue(asOf) {
			out = append(out, models.ScheduleView{
				ScheduleID: sc.ID, KnowledgeItemID: sc.KnowledgeItemID, UserID: sc.UserID,
				Stage: sc.Stage, DueAt: sc.DueAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].ScheduleID < out[j].ScheduleID
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out, nil
}

func (s *memStore) MarkComplete(_ context.Context, id, ownerID int64) (bool, error) {
	for i := range s.schedules {
		sc := &s.schedules[i]
		if sc.ID == id && sc.UserID == ownerID && !sc.Completed {
			sc.Completed = true
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateRecord(_ context.Context, r *models.ReviewRecord) (int64, error) {
	if s.failCreateRecord != nil {
		return 0, s.failCreateRecord
	}
	rec := *r
	rec.ID = s.nextID()
	s.records = append(s.records, rec)
	return rec.ID, nil
}

func (s *memStore) ListSchedulesForItem(_ context.Context, itemID, ownerID int64) ([]models.ReviewSchedule, error) {
	var out []models.ReviewSchedule
	for _, sc := range s.schedules {
		if sc.KnowledgeItemID == itemID && sc.UserID == ownerID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *memStore) CountDue(ctx context.Context, ownerID int64, asOf time.Time) (int, error) {
	due, _ := s.FindDueSchedules(ctx, ownerID, asOf)
	return len(due), nil
}

func (s *memStore) CountOverdue(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	due, _ := s.FindDueSchedules(ctx, ownerID, StartOfDay(now).Add(-time.Nanosecond))
	return len(due), nil
}

func (s *memStore) InTx(_ context.Context, fn func(ScheduleStore) error) error {
	schedules := append([]models.ReviewSchedule(nil), s.schedules...)
	records := append([]models.ReviewRecord(nil), s.records...)
	if err := fn(s); err != nil {
		s.schedules = schedules
		s.records = records
		return err
	}
	return nil
}

func (s *memStore) open(itemID int64) []models.ReviewSchedule {
	var out []models.ReviewSchedule
	for _, sc := range s.schedules {
		if sc.KnowledgeItemID == itemID && !sc.Completed {
			out = append(out, sc)
		}
	}
	return out
}

func (s *memStore) completedCount() int {
	n := 0
	for _, sc := range s.schedules {
		if sc.Completed {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, items ...int64) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore(items...)
	return NewEngine(DefaultStages(), store, nil), store
}

func mustSeed(t *testing.T, e *Engine, itemID int64, now time.Time) *models.ReviewSchedule {
	t.Helper()
	s, err := e.ScheduleFirstReview(context.Background(), itemID, owner, now)
	if err != nil {
		t.Fatalf("ScheduleFirstReview: %v", err)
	}
	return s
}

func mustComplete(t *testing.T, e *Engine, scheduleID int64, eff int, now time.Time) *Outcome {
	t.Helper()
	out, err := e.CompleteReview(context.Background(), CompleteRequest{
		ScheduleID: scheduleID, OwnerID: owner, Effectiveness: eff, RecallScore: 80, Now: now,
	})
	if err != nil {
		t.Fatalf("CompleteReview(eff=%d): %v", eff, err)
	}
	return out
}

func assertSingleOpen(t *testing.T, store *memStore, itemID int64) {
	t.Helper()
	if n := len(store.open(itemID)); n > 1 {
		t.Fatalf("item %d has %d open schedules", itemID, n)
	}
}

// --- ScheduleFirstReview ---

func TestScheduleFirstReview(t *testing.T) {
	e, store := newTestEngine(t, 10)
	s := mustSeed(t, e, 10, t0)

	open := store.open(10)
	if len(open) != 1 {
		t.Fatalf("open schedules = %d, want 1", len(open))
	}
	if open[0].Stage != 0 || s.Stage != 0 {
		t.Errorf("stage = %d, want 0", open[0].Stage)
	}
	if !open[0].DueAt.Equal(t0.Add(e.Stages().DelayFor(0))) {
		t.Errorf("dueAt = %s, want %s", open[0].DueAt, t0)
	}
}

func TestScheduleFirstReviewRejectsSecondOpen(t *testing.T) {
	e, store := newTestEngine(t, 10)
	mustSeed(t, e, 10, t0)

	_, err := e.ScheduleFirstReview(context.Background(), 10, owner, t0)
	if !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("err = %v, want ErrAlreadyScheduled", err)
	}
	if !errors.Is(err, ErrPrecondition) {
		t.Error("ErrAlreadyScheduled must be a precondition error")
	}
	assertSingleOpen(t, store, 10)
}

func TestScheduleFirstReviewForeignItem(t *testing.T) {
	e, _ := newTestEngine(t, 10)
	_, err := e.ScheduleFirstReview(context.Background(), 10, stranger, t0)
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
}

func TestOpenScheduleHidesForeignItems(t *testing.T) {
	e, store := newTestEngine(t, 10)
	mustSeed(t, e, 10, t0)

	_, err := e.PullForward(context.Background(), 10, stranger, t0, 0)
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("pull on foreign scheduled item: err = %v, want ErrItemNotFound", err)
	}
	_, err = e.ScheduleFirstReview(context.Background(), 10, stranger, t0)
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("seed on foreign scheduled item: err = %v, want ErrItemNotFound", err)
	}
	_, missing := e.PullForward(context.Background(), 9999, stranger, t0, 0)
	if !errors.Is(missing, ErrItemNotFound) {
		t.Errorf("pull on missing item: err = %v, want ErrItemNotFound", missing)
	}
	assertSingleOpen(t, store, 10)
}

// --- NextStage ---

func TestNextStageRule(t *testing.T) {
	tests := []struct {
		current, eff, want int
	}{
		{0, 5, 1},
		{3, 4, 4},
		{6, 5, 7}, // mastered
		{2, 3, 2},
		{2, 2, 2},
		{0, 2, 0},
		{3, 1, 2},
		{0, 1, 0}, // floor
	}
	for _, tt := range tests {
		if got := NextStage(tt.current, tt.eff, 7); got != tt.want {
			t.Errorf("NextStage(%d, %d) = %d, want %d", tt.current, tt.eff, got, tt.want)
		}
	}
}

// --- CompleteReview ---

func TestCompleteReviewScenario(t *testing.T) {
	e, store := newTestEngine(t, 10)
	first := mustSeed(t, e, 10, t0)
	if !first.DueAt.Equal(t0) {
		t.Fatalf("first due %s, want %s", first.DueAt, t0)
	}

	t1 := t0.Add(5 * time.Minute)
	out := mustComplete(t, e, first.ID, 5, t1)
	if out.Next == nil || out.Next.Stage != 1 || !out.Next.DueAt.Equal(t1.Add(time.Hour)) {
		t.Fatalf("after eff=5: next = %+v, want stage 1 due %s", out.Next, t1.Add(time.Hour))
	}
	assertSingleOpen(t, store, 10)

	t2 := t1.Add(2 * time.Hour)
	out = mustComplete(t, e, out.Next.ID, 2, t2)
	if out.Next.Stage != 1 || !out.Next.DueAt.Equal(t2.Add(time.Hour)) {
		t.Fatalf("after eff=2: next = %+v, want stage 1 due %s", out.Next, t2.Add(time.Hour))
	}
	assertSingleOpen(t, store, 10)

	t3 := t2.Add(3 * time.Hour)
	out = mustComplete(t, e, out.Next.ID, 1, t3)
	if out.Next.Stage != 0 || !out.Next.DueAt.Equal(t3) {
		t.Fatalf("after eff=1: next = %+v, want stage 0 due %s", out.Next, t3)
	}
	if out.PreviousStage != 1 || out.NextStage != 0 {
		t.Errorf("stages %d -> %d, want 1 -> 0", out.PreviousStage, out.NextStage)
	}
	assertSingleOpen(t, store, 10)
	if len(store.records) != 3 {
		t.Errorf("records = %d, want 3", len(store.records))
	}
}

func TestDemoteFromStageZeroStaysAtZero(t *testing.T) {
	e, _ := newTestEngine(t, 10)
	first := mustSeed(t, e, 10, t0)
	out := mustComplete(t, e, first.ID, 1, t0)
	if out.Next == nil || out.Next.Stage != 0 {
		t.Fatalf("next = %+v, want stage 0", out.Next)
	}
}

func TestMasteryAfterSevenPromotions(t *testing.T) {
	e, store := newTestEngine(t, 10)
	sched := mustSeed(t, e, 10, t0)

	now := t0
	var out *Outcome
	for i := 0; i < 7; i++ {
		out = mustComplete(t, e, sched.ID, 5, now)
		if i < 6 {
			if out.Mastered || out.Next == nil {
				t.Fatalf("completion %d mastered early", i+1)
			}
			sched = out.Next
			now = sched.DueAt
		}
		assertSingleOpen(t, store, 10)
	}

	if !out.Mastered || out.Next != nil {
		t.Fatalf("7th completion: mastered=%v next=%v", out.Mastered, out.Next)
	}
	if out.NextStage != 7 {
		t.Errorf("NextStage = %d, want 7", out.NextStage)
	}
	if len(store.records) != 7 {
		t.Errorf("records = %d, want 7", len(store.records))
	}
	if store.completedCount() != 7 {
		t.Errorf("completed schedules = %d, want 7", store.completedCount())
	}
	if len(store.open(10)) != 0 {
		t.Error("mastered item must have no open schedule")
	}

	st, err := e.ItemStatus(context.Background(), 10, owner)
	if err != nil {
		t.Fatalf("ItemStatus: %v", err)
	}
	if st.Kind != Mastered || st.Completions != 7 {
		t.Errorf("status = %+v, want mastered with 7 completions", st)
	}
}

func TestCompleteReviewValidation(t *testing.T) {
	tests := []struct {
		name   string
		eff    int
		recall float64
		field  string
	}{
		{"effectiveness too low", 0, 50, "effectiveness"},
		{"effectiveness too high", 6, 50, "effectiveness"},
		{"recall negative", 3, -1, "recall_score"},
		{"recall over 100", 3, 100.5, "recall_score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newTestEngine(t, 10)
			sched := mustSeed(t, e, 10, t0)

			_, err := e.CompleteReview(context.Background(), CompleteRequest{
				ScheduleID: sched.ID, OwnerID: owner, Effectiveness: tt.eff, RecallScore: tt.recall, Now: t0,
			})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("ValidationError must match ErrValidation")
			}
			if len(store.records) != 0 || store.completedCount() != 0 {
				t.Error("validation failure must not write")
			}
		})
	}
}

func TestCompleteReviewPreconditions(t *testing.T) {
	e, store := newTestEngine(t, 10)
	first := mustSeed(t, e, 10, t0)
	out := mustComplete(t, e, first.ID, 4, t0)

	tests := []struct {
		name       string
		scheduleID int64
		ownerID    int64
		want       error
	}{
		{"nonexistent", 999, owner, ErrScheduleNotFound},
		{"already completed", first.ID, owner, ErrAlreadyCompleted},
		{"owner mismatch", out.Next.ID, stranger, ErrOwnerMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := len(store.records)
			completed := store.completedCount()

			_, err := e.CompleteReview(context.Background(), CompleteRequest{
				ScheduleID: tt.scheduleID, OwnerID: tt.ownerID, Effectiveness: 5, RecallScore: 90, Now: t0,
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrPrecondition) {
				t.Error("want a precondition error")
			}
			if len(store.records) != records || store.completedCount() != completed {
				t.Error("precondition failure must not write")
			}
		})
	}
	assertSingleOpen(t, store, 10)
}

func TestCompleteReviewRollsBackOnStorageFailure(t *testing.T) {
	e, store := newTestEngine(t, 10)
	first := mustSeed(t, e, 10, t0)

	store.failCreateSchedule = errors.New("disk full")
	_, err := e.CompleteReview(context.Background(), CompleteRequest{
		ScheduleID: first.ID, OwnerID: owner, Effectiveness: 5, RecallScore: 90, Now: t0,
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if errors.Is(err, ErrPrecondition) {
		t.Error("storage failure must not look like a precondition failure")
	}
	if len(store.records) != 0 {
		t.Errorf("records = %d, want rollback to 0", len(store.records))
	}
	open := store.open(10)
	if len(open) != 1 || open[0].ID != first.ID {
		t.Errorf("open = %+v, want original schedule still open", open)
	}

	// retry after the fault clears succeeds exactly once
	store.failCreateSchedule = nil
	mustComplete(t, e, first.ID, 5, t0)
	if _, err := e.CompleteReview(context.Background(), CompleteRequest{
		ScheduleID: first.ID, OwnerID: owner, Effectiveness: 5, RecallScore: 90, Now: t0,
	}); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("second completion err = %v, want ErrAlreadyCompleted", err)
	}
	if len(store.records) != 1 {
		t.Errorf("records = %d, want 1", len(store.records))
	}
}

func TestCompleteReviewRejectsCorruptStage(t *testing.T) {
	e, store := newTestEngine(t, 10)
	first := mustSeed(t, e, 10, t0)
	store.schedules[0].Stage = 12

	_, err := e.CompleteReview(context.Background(), CompleteRequest{
		ScheduleID: first.ID, OwnerID: owner, Effectiveness: 5, RecallScore: 90, Now: t0,
	})
	if !errors.Is(err, ErrStageOutOfRange) {
		t.Fatalf("err = %v, want ErrStageOutOfRange", err)
	}
	if len(store.records) != 0 {
		t.Error("corrupt stage must not write a record")
	}
}

// --- PullForward ---

func TestPullForward(t *testing.T) {
	e, store := newTestEngine(t, 10)

	s, err := e.PullForward(context.Background(), 10, owner, t0, 30*time.Minute)
	if err != nil {
		t.Fatalf("PullForward: %v", err)
	}
	if s.Stage != 0 || !s.DueAt.Equal(t0.Add(30*time.Minute)) {
		t.Errorf("pulled schedule = %+v", s)
	}

	if _, err := e.PullForward(context.Background(), 10, owner, t0, 0); !errors.Is(err, ErrAlreadyScheduled) {
		t.Errorf("second pull err = %v, want ErrAlreadyScheduled", err)
	}
	assertSingleOpen(t, store, 10)

	out := mustComplete(t, e, s.ID, 5, t0.Add(time.Hour))
	if out.Next.Stage != 1 {
		t.Errorf("completion of pulled schedule: next stage = %d, want 1", out.Next.Stage)
	}
}

func TestPullForwardAfterMastery(t *testing.T) {
	e, store := newTestEngine(t, 10)
	sched := mustSeed(t, e, 10, t0)
	for i := 0; i < 7; i++ {
		out := mustComplete(t, e, sched.ID, 5, t0)
		sched = out.Next
	}

	s, err := e.PullForward(context.Background(), 10, owner, t0, 0)
	if err != nil {
		t.Fatalf("PullForward after mastery: %v", err)
	}
	st, _ := e.ItemStatus(context.Background(), 10, owner)
	if st.Kind != Pending || st.Stage != 0 || st.ScheduleID != s.ID {
		t.Errorf("status = %+v, want pending at stage 0", st)
	}
	assertSingleOpen(t, store, 10)
}

func TestPullForwardNegativeDelay(t *testing.T) {
	e, store := newTestEngine(t, 10)
	_, err := e.PullForward(context.Background(), 10, owner, t0, -time.Minute)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(store.schedules) != 0 {
		t.Error("validation failure must not write")
	}
}

// --- due queries and status ---

func TestFindDueSchedulesOrdering(t *testing.T) {
	e, _ := newTestEngine(t, 10, 11, 12)
	mustSeed(t, e, 12, t0.Add(2*time.Minute))
	mustSeed(t, e, 10, t0)
	mustSeed(t, e, 11, t0)

	due, err := e.FindDueSchedules(context.Background(), owner, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("FindDueSchedules: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("due = %d, want 3", len(due))
	}
	if due[0].KnowledgeItemID != 10 || due[1].KnowledgeItemID != 11 || due[2].KnowledgeItemID != 12 {
		t.Errorf("order = %d,%d,%d, want 10,11,12", due[0].KnowledgeItemID, due[1].KnowledgeItemID, due[2].KnowledgeItemID)
	}

	n, err := e.CountDue(context.Background(), owner, t0)
	if err != nil || n != 2 {
		t.Errorf("CountDue = %d, %v; want 2", n, err)
	}
}

func TestDeriveStatus(t *testing.T) {
	if st := DeriveStatus(nil); st.Kind != NoSchedule {
		t.Errorf("empty log: %v, want no_schedule", st.Kind)
	}

	log := []models.ReviewSchedule{
		{ID: 1, Stage: 0, Completed: true},
		{ID: 2, Stage: 1, Completed: true},
		{ID: 3, Stage: 2, DueAt: t0},
	}
	st := DeriveStatus(log)
	if st.Kind != Pending || st.Stage != 2 || st.ScheduleID != 3 || st.Completions != 2 {
		t.Errorf("status = %+v", st)
	}

	st = DeriveStatus(log[:2])
	if st.Kind != Mastered || st.Stage != 1 {
		t.Errorf("status = %+v, want mastered", st)
	}
	if Mastered.String() != "mastered" || StatusKind(9).String() != "StatusKind(9)" {
		t.Error("unexpected StatusKind names")
	}
}
