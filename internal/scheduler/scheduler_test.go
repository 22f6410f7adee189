package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/reviewalarm/internal/notify"
	"github.com/example/reviewalarm/pkg/models"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu    sync.Mutex
	views []models.ScheduleView
	err   error
	asked []int64
}

func (f *fakeSource) FindDueSchedules(_ context.Context, ownerID int64, asOf time.Time) ([]models.ScheduleView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, ownerID)
	if f.err != nil {
		return nil, f.err
	}
	var due []models.ScheduleView
	for _, v := range f.views {
		if v.UserID == ownerID && !v.DueAt.After(asOf) {
			due = append(due, v)
		}
	}
	return due, nil
}

func (f *fakeSource) set(views ...models.ScheduleView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = views
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	failOn string
}

func (f *fakeNotifier) Notify(_ context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(body, f.failOn) {
		return errors.New("delivery failed")
	}
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func view(id int64, title string, stage int, due time.Time) models.ScheduleView {
	return models.ScheduleView{
		ScheduleID:      id,
		KnowledgeItemID: id * 10,
		UserID:          1,
		Title:           title,
		Content:         "content of " + title,
		Stage:           stage,
		DueAt:           due,
	}
}

func newTestPoller(src DueSource, n *fakeNotifier, cfg Config) *Poller {
	if cfg.MinInterval == 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	cfg.Location = time.UTC
	p := NewPoller(src, n, nil, cfg, zap.NewNop())
	p.now = func() time.Time { return t0 }
	return p
}

func TestCheckNowNotifiesEachDueSchedule(t *testing.T) {
	src := &fakeSource{}
	src.set(
		view(1, "Go interfaces", 0, t0.Add(-time.Hour)),
		view(2, "Raft", 2, t0),
		view(3, "Future", 0, t0.Add(time.Minute)),
	)
	n := &fakeNotifier{}
	p := newTestPoller(src, n, Config{})

	delivered, err := p.CheckNow(context.Background(), 1)
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if delivered != 2 || n.count() != 2 {
		t.Fatalf("delivered %d (notifier saw %d), want 2", delivered, n.count())
	}
	if n.titles[0] != ReminderTitle {
		t.Errorf("title = %q", n.titles[0])
	}
	want := "[Stage 1] Go interfaces\nContent: content of Go interfaces\nDue: 09:00\nReview soon to lock it in."
	if n.bodies[0] != want {
		t.Errorf("body = %q, want %q", n.bodies[0], want)
	}
	if !strings.HasPrefix(n.bodies[1], "[Stage 3] Raft") {
		t.Errorf("second body = %q", n.bodies[1])
	}
	if st := p.Status(); st.LastNotified != 2 || !st.LastTick.Equal(t0) {
		t.Errorf("status = %+v", st)
	}
}

func TestMessageTruncatesPreview(t *testing.T) {
	p := newTestPoller(&fakeSource{}, &fakeNotifier{}, Config{})
	v := view(1, "long", 0, t0)
	v.Content = strings.Repeat("é", 150)

	_, body := p.Message(v)
	wantPreview := "Content: " + strings.Repeat("é", 100) + "...\n"
	if !strings.Contains(body, wantPreview) {
		t.Errorf("body %q should contain a 100-rune preview", body)
	}
}

func TestCheckNowRenotifiesWithoutDedupe(t *testing.T) {
	src := &fakeSource{}
	src.set(view(1, "a", 0, t0))
	n := &fakeNotifier{}
	p := newTestPoller(src, n, Config{})

	for i := 0; i < 3; i++ {
		if _, err := p.CheckNow(context.Background(), 1); err != nil {
			t.Fatal(err)
		}
	}
	if n.count() != 3 {
		t.Errorf("got %d reminders, want one per tick", n.count())
	}
}

func TestCheckNowDedupe(t *testing.T) {
	src := &fakeSource{}
	src.set(view(1, "a", 0, t0), view(2, "b", 0, t0))
	n := &fakeNotifier{}
	p := newTestPoller(src, n, Config{Dedupe: true})

	ctx := context.Background()
	if got, _ := p.CheckNow(ctx, 1); got != 2 {
		t.Fatalf("first scan delivered %d, want 2", got)
	}
	if got, _ := p.CheckNow(ctx, 1); got != 0 {
		t.Fatalf("second scan delivered %d, want 0", got)
	}

	// schedule 1 completed, a new schedule 3 became due
	src.set(view(2, "b", 0, t0), view(3, "c", 1, t0))
	if got, _ := p.CheckNow(ctx, 1); got != 1 {
		t.Fatalf("third scan delivered %d, want 1", got)
	}
	// schedule 1 reappearing after leaving the due set is reminded again
	src.set(view(1, "a", 0, t0))
	if got, _ := p.CheckNow(ctx, 1); got != 1 {
		t.Fatalf("fourth scan delivered %d, want 1", got)
	}
}

func TestCheckNowRetriesFailedDeliveryWithDedupe(t *testing.T) {
	src := &fakeSource{}
	src.set(view(1, "flaky", 0, t0), view(2, "fine", 0, t0))
	n := &fakeNotifier{failOn: "flaky"}
	p := newTestPoller(src, n, Config{Dedupe: true})

	got, err := p.CheckNow(context.Background(), 1)
	if err != nil {
		t.Fatalf("notifier failure must not fail the scan: %v", err)
	}
	if got != 1 {
		t.Fatalf("delivered %d, want 1", got)
	}

	n.mu.Lock()
	n.failOn = ""
	n.mu.Unlock()
	if got, _ := p.CheckNow(context.Background(), 1); got != 1 {
		t.Errorf("failed reminder should be retried, delivered %d", got)
	}
}

func TestCheckNowRetriesChannelFailureBehindLogFallback(t *testing.T) {
	src := &fakeSource{}
	src.set(view(1, "flaky", 0, t0))
	telegram := &fakeNotifier{failOn: "flaky"}

	m := notify.NewMulti(zap.NewNop())
	m.AddFallback("log", notify.NewLogNotifier(zap.NewNop()))
	m.Add("telegram", telegram)

	p := NewPoller(src, m, nil, Config{Interval: time.Second, MinInterval: time.Second, Dedupe: true, Location: time.UTC}, zap.NewNop())
	p.now = func() time.Time { return t0 }

	for tick := 0; tick < 3; tick++ {
		got, err := p.CheckNow(context.Background(), 1)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if got != 0 {
			t.Fatalf("tick %d: delivered %d while the only channel fails, want 0", tick, got)
		}
	}

	telegram.mu.Lock()
	telegram.failOn = ""
	telegram.mu.Unlock()
	if got, _ := p.CheckNow(context.Background(), 1); got != 1 {
		t.Fatalf("delivered %d after the channel recovered, want 1", got)
	}
	if telegram.count() != 1 {
		t.Errorf("telegram received %d reminders, want 1", telegram.count())
	}
	if got, _ := p.CheckNow(context.Background(), 1); got != 0 {
		t.Errorf("delivered %d after success with dedupe, want 0", got)
	}
}

func TestCheckNowMidnightOnlyWindow(t *testing.T) {
	src := &fakeSource{}
	src.set(view(1, "a", 0, t0.Add(-time.Hour)))
	n := &fakeNotifier{}
	p := newTestPoller(src, n, Config{Hours: &HourWindow{Start: 0, End: 0}})

	if got, _ := p.CheckNow(context.Background(), 1); got != 0 {
		t.Errorf("delivered %d at 10:00 with a midnight-only window, want 0", got)
	}
	p.now = func() time.Time { return time.Date(2025, 6, 16, 0, 30, 0, 0, time.UTC) }
	if got, _ := p.CheckNow(context.Background(), 1); got != 1 {
		t.Errorf("delivered %d at 00:30, want 1", got)
	}
}

func TestCheckNowQuietHours(t *testing.T) {
	src := &fakeSource{}
	src.set(view(1, "a", 0, t0))
	n := &fakeNotifier{}
	p := newTestPoller(src, n, Config{Hours: &HourWindow{Start: 12, End: 22}})

	got, err := p.CheckNow(context.Background(), 1)
	if err != nil || got != 0 {
		t.Fatalf("CheckNow = %d, %v; want 0 outside notification hours", got, err)
	}
	if len(src.asked) != 0 {
		t.Error("source should not be queried outside notification hours")
	}

	p.now = func() time.Time { return t0.Add(3 * time.Hour) }
	if got, _ := p.CheckNow(context.Background(), 1); got != 1 {
		t.Errorf("delivered %d inside notification hours, want 1", got)
	}
}

func TestCheckNowSourceError(t *testing.T) {
	boom := errors.New("db down")
	p := newTestPoller(&fakeSource{err: boom}, &fakeNotifier{}, Config{})
	if _, err := p.CheckNow(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("got %v, want source error", err)
	}
}

func TestSetIntervalEnforcesFloor(t *testing.T) {
	p := NewPoller(&fakeSource{}, &fakeNotifier{}, nil, Config{}, nil)
	if err := p.SetInterval(5 * time.Second); !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("got %v, want ErrIntervalTooShort", err)
	}
	if err := p.SetInterval(time.Minute); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if got := p.Status().PeriodSeconds; got != 60 {
		t.Errorf("period = %d, want 60", got)
	}
}

func TestNewPollerDefaults(t *testing.T) {
	p := NewPoller(&fakeSource{}, &fakeNotifier{}, nil, Config{Interval: time.Second}, nil)
	if got := p.Status().PeriodSeconds; got != 10 {
		t.Errorf("interval below the default floor should be raised, got %ds", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	p := newTestPoller(&fakeSource{}, &fakeNotifier{}, Config{Interval: time.Minute})

	p.Stop() // stopping a stopped poller is a no-op

	started, err := p.Start(1)
	if err != nil || !started {
		t.Fatalf("Start = %v, %v", started, err)
	}
	started, err = p.Start(1)
	if err != nil || started {
		t.Fatalf("second Start = %v, %v; want already running", started, err)
	}
	if st := p.Status(); !st.Running || st.OwnerID != 1 || st.PeriodSeconds != 60 {
		t.Errorf("status = %+v", st)
	}

	p.Stop()
	p.Stop()
	if p.Status().Running {
		t.Error("poller should be stopped")
	}

	started, err = p.Start(1)
	if err != nil || !started {
		t.Fatalf("restart = %v, %v", started, err)
	}
	p.Stop()
}

func TestPollerStopsPromptly(t *testing.T) {
	src := &fakeSource{}
	src.set(view(1, "due", 0, t0))
	n := &fakeNotifier{}
	p := newTestPoller(src, n, Config{Interval: time.Second})

	if _, err := p.Start(1); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if n.count() == 0 {
		p.Stop()
		t.Fatal("poller never delivered a reminder")
	}

	time.Sleep(1200 * time.Millisecond)
	begin := time.Now()
	p.Stop()
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop took %v", elapsed)
	}

	after := n.count()
	time.Sleep(1500 * time.Millisecond)
	if n.count() != after {
		t.Errorf("reminders kept arriving after Stop: %d -> %d", after, n.count())
	}
}
