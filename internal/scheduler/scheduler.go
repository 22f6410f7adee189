package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/reviewalarm/internal/notify"
	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/example/reviewalarm/pkg/models"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Defaults for the reminder loop
const (
	DefaultInterval    = 30 * time.Second
	DefaultMinInterval = 10 * time.Second

	ReminderTitle = "Review reminder"
	previewRunes  = 100
)

// ErrIntervalTooShort is returned for polling periods below the floor
var ErrIntervalTooShort = errors.New("reminder interval below minimum")

// DueSource lists the owner's due schedules
type DueSource interface {
	FindDueSchedules(ctx context.Context, ownerID int64, asOf time.Time) ([]models.ScheduleView, error)
}

// Config controls the polling loop
type Config struct {
	Interval    time.Duration
	MinInterval time.Duration
	// Dedupe notifies each schedule once while it stays due instead of on every tick
	Dedupe bool
	// Hours limits reminders to a window of local hours. Nil means every hour.
	Hours    *HourWindow
	Location *time.Location
}

// HourWindow is an inclusive range of local hours, 0..23
type HourWindow struct {
	Start int
	End   int
}

// Contains reports whether hour falls inside the window
func (w HourWindow) Contains(hour int) bool {
	return hour >= w.Start && hour <= w.End
}

// Status reports the poller state
type Status struct {
	Running       bool      `json:"running"`
	PeriodSeconds int       `json:"period_seconds"`
	OwnerID       int64     `json:"owner_id,omitempty"`
	LastTick      time.Time `json:"last_tick,omitempty"`
	LastNotified  int       `json:"last_notified"`
}

// Poller periodically scans an owner's due schedules and sends one
// reminder per due schedule. The application owns one Poller and passes it
// to whatever needs to start or stop it.
type Poller struct {
	source   DueSource
	notifier notify.Notifier
	stages   *spaced_repetition.StageTable
	logger   *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	cfg          Config
	scheduler    *gocron.Scheduler
	ctx          context.Context
	cancel       context.CancelFunc
	running      bool
	ownerID      int64
	lastTick     time.Time
	lastNotified int
	notified     map[int64]struct{}
}

// NewPoller creates a stopped poller
func NewPoller(source DueSource, notifier notify.Notifier, stages *spaced_repetition.StageTable, cfg Config, logger *zap.Logger) *Poller {
	if stages == nil {
		stages = spaced_repetition.DefaultStages()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < cfg.MinInterval {
		cfg.Interval = cfg.MinInterval
	}
	if cfg.Hours != nil {
		hours := *cfg.Hours
		cfg.Hours = &hours
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Poller{
		source:   source,
		notifier: notifier,
		stages:   stages,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
		notified: make(map[int64]struct{}),
	}
}

// Start begins polling for ownerID. It reports false when the poller is
// already running; the error is set only when the job cannot be scheduled.
func (p *Poller) Start(ownerID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Info("reminder poller already running", zap.Int64("owner_id", p.ownerID))
		return false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	seconds := int(p.cfg.Interval / time.Second)
	if _, err := s.Every(seconds).Seconds().Do(p.tick); err != nil {
		cancel()
		return false, fmt.Errorf("failed to schedule reminder job: %w", err)
	}

	if p.ownerID != ownerID {
		p.notified = make(map[int64]struct{})
	}
	p.scheduler = s
	p.ctx = ctx
	p.cancel = cancel
	p.ownerID = ownerID
	p.running = true
	s.StartAsync()

	p.logger.Info("reminder poller started",
		zap.Int64("owner_id", ownerID),
		zap.Duration("interval", p.cfg.Interval))
	return true, nil
}

// Stop cancels the in-flight scan and stops the loop. Stopping a stopped
// poller does nothing.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	s := p.scheduler
	p.cancel()
	p.running = false
	p.scheduler = nil
	p.mu.Unlock()

	// gocron waits for a running tick, which sees the cancelled context
	s.Stop()
	p.logger.Info("reminder poller stopped")
}

// Status returns a snapshot of the poller state
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:       p.running,
		PeriodSeconds: int(p.cfg.Interval / time.Second),
		OwnerID:       p.ownerID,
		LastTick:      p.lastTick,
		LastNotified:  p.lastNotified,
	}
}

// SetInterval changes the polling period, restarting the loop if it runs
func (p *Poller) SetInterval(d time.Duration) error {
	p.mu.Lock()
	if d < p.cfg.MinInterval {
		p.mu.Unlock()
		return fmt.Errorf("%w: %v < %v", ErrIntervalTooShort, d, p.cfg.MinInterval)
	}
	p.cfg.Interval = d
	running, owner := p.running, p.ownerID
	p.mu.Unlock()

	if !running {
		return nil
	}
	p.Stop()
	_, err := p.Start(owner)
	return err
}

func (p *Poller) tick() {
	p.mu.Lock()
	ctx, owner := p.ctx, p.ownerID
	p.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := p.CheckNow(ctx, owner); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("reminder scan failed", zap.Int64("owner_id", owner), zap.Error(err))
	}
}

// CheckNow runs one scan for ownerID and returns how many reminders were
// delivered. Notifier failures are logged and do not fail the scan.
func (p *Poller) CheckNow(ctx context.Context, ownerID int64) (int, error) {
	now := p.now().In(p.location())

	p.mu.Lock()
	p.lastTick = now
	hours := p.cfg.Hours
	p.mu.Unlock()

	if hours != nil && !hours.Contains(now.Hour()) {
		p.logger.Debug("outside notification hours, skipping reminders",
			zap.Int("hour", now.Hour()), zap.Int("start_hour", hours.Start), zap.Int("end_hour", hours.End))
		return 0, nil
	}

	due, err := p.source.FindDueSchedules(ctx, ownerID, now)
	if err != nil {
		return 0, err
	}

	pending := p.filterNotified(due)
	delivered := 0
	for _, view := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		title, body := p.Message(view)
		if err := p.notifier.Notify(ctx, title, body); err != nil {
			p.logger.Warn("failed to deliver reminder",
				zap.Int64("schedule_id", view.ScheduleID),
				zap.Error(err))
			continue
		}
		p.markNotified(view.ScheduleID)
		delivered++
	}

	p.mu.Lock()
	p.lastNotified = delivered
	p.mu.Unlock()

	if len(due) > 0 {
		p.logger.Debug("reminder scan finished",
			zap.Int64("owner_id", ownerID),
			zap.Int("due", len(due)),
			zap.Int("delivered", delivered))
	}
	return delivered, nil
}

// Message renders the reminder for one due schedule
func (p *Poller) Message(view models.ScheduleView) (string, string) {
	body := fmt.Sprintf("[%s] %s\nContent: %s\nDue: %s\nReview soon to lock it in.",
		p.stages.LabelFor(view.Stage),
		view.Title,
		view.Preview(previewRunes),
		view.DueAt.In(p.location()).Format("15:04"))
	return ReminderTitle, body
}

func (p *Poller) location() *time.Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Location
}

// filterNotified drops schedules already reminded about when dedupe is on,
// and forgets schedules that are no longer due
func (p *Poller) filterNotified(due []models.ScheduleView) []models.ScheduleView {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cfg.Dedupe {
		return due
	}

	stillDue := make(map[int64]struct{}, len(due))
	pending := make([]models.ScheduleView, 0, len(due))
	for _, view := range due {
		stillDue[view.ScheduleID] = struct{}{}
		if _, seen := p.notified[view.ScheduleID]; !seen {
			pending = append(pending, view)
		}
	}
	for id := range p.notified {
		if _, ok := stillDue[id]; !ok {
			delete(p.notified, id)
		}
	}
	return pending
}

func (p *Poller) markNotified(scheduleID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.Dedupe {
		p.notified[scheduleID] = struct{}{}
	}
}
