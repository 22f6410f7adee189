package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/example/reviewalarm/internal/database"
	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/example/reviewalarm/pkg/models"
)

// Defaults used by the overview
const (
	DefaultCompletionWindow = 30 * 24 * time.Hour
	EfficiencyWindow        = 7 * 24 * time.Hour
	Uncategorized           = "Uncategorized"
)

// Repository is the aggregate storage the statistics are computed from
type Repository interface {
	ReviewTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)
	RecallSamples(ctx context.Context, userID int64, since time.Time) ([]database.RecallSample, error)
	LastReviewAt(ctx context.Context, userID int64) (*time.Time, error)
	ScheduleWindow(ctx context.Context, userID int64, from, to time.Time) (database.WindowCounts, error)
	OpenStageCounts(ctx context.Context, userID int64) (map[int]int, error)
	EffectivenessCounts(ctx context.Context, userID int64) (map[int]int, error)
	CategoryCounts(ctx context.Context, userID int64) (map[string]int, error)
	CountActiveItems(ctx context.Context, userID int64) (int, error)
	CountMasteredItems(ctx context.Context, userID int64) (int, error)
}

// DueCounter counts due and overdue schedules
type DueCounter interface {
	CountDue(ctx context.Context, ownerID int64, asOf time.Time) (int, error)
	CountOverdue(ctx context.Context, ownerID int64, now time.Time) (int, error)
}

// StageCount is the number of open schedules at one stage
type StageCount struct {
	Stage int    `json:"stage"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ScoreShare is the share of reviews rated with one effectiveness score
type ScoreShare struct {
	Score   int     `json:"score"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// CategoryCount is the number of active items in one category
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Service computes read-only statistics. Calendar days are evaluated in
// the service's location.
type Service struct {
	repo   Repository
	due    DueCounter
	stages *spaced_repetition.StageTable
	loc    *time.Location
}

// NewService creates a statistics service
func NewService(repo Repository, due DueCounter, stages *spaced_repetition.StageTable) *Service {
	if stages == nil {
		stages = spaced_repetition.DefaultStages()
	}
	return &Service{repo: repo, due: due, stages: stages, loc: time.Local}
}

// WithLocation returns a copy of the service that buckets days in loc
func (s *Service) WithLocation(loc *time.Location) *Service {
	c := *s
	c.loc = loc
	return &c
}

func (s *Service) startOfDay(t time.Time) time.Time {
	return spaced_repetition.StartOfDay(t.In(s.loc))
}

// TodayDueCount counts open schedules due on or before the end of today
func (s *Service) TodayDueCount(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	endOfDay := s.startOfDay(now).AddDate(0, 0, 1).Add(-time.Nanosecond)
	return s.due.CountDue(ctx, ownerID, endOfDay)
}

// OverdueCount counts open schedules that were due before today
func (s *Service) OverdueCount(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	return s.due.CountOverdue(ctx, ownerID, now.In(s.loc))
}

// CompletionRate is the percentage of schedules due in [now-window, now]
// that were completed, rounded to one decimal. It is 0 with no schedules.
func (s *Service) CompletionRate(ctx context.Context, ownerID int64, now time.Time, window time.Duration) (float64, error) {
	if window <= 0 {
		window = DefaultCompletionWindow
	}
	counts, err := s.repo.ScheduleWindow(ctx, ownerID, now.Add(-window), now)
	if err != nil {
		return 0, err
	}
	if counts.Total == 0 {
		return 0, nil
	}
	return round1(float64(counts.Completed) / float64(counts.Total) * 100), nil
}

// StreakDays counts consecutive calendar days with at least one review,
// walking back from today. A day without reviews ends the streak, so the
// streak is 0 when nothing was reviewed today.
func (s *Service) StreakDays(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	times, err := s.repo.ReviewTimes(ctx, ownerID, time.Time{})
	if err != nil {
		return 0, err
	}
	days := make(map[time.Time]bool, len(times))
	for _, t := range times {
		days[s.startOfDay(t)] = true
	}

	streak := 0
	for day := s.startOfDay(now); days[day]; day = day.AddDate(0, 0, -1) {
		streak++
	}
	return streak, nil
}

// StageDistribution lists every stage with its number of open schedules
func (s *Service) StageDistribution(ctx context.Context, ownerID int64) ([]StageCount, error) {
	counts, err := s.repo.OpenStageCounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]StageCount, 0, s.stages.StageCount())
	for _, def := range s.stages.All() {
		out = append(out, StageCount{Stage: def.Index, Label: def.Label, Count: counts[def.Index]})
	}
	return out, nil
}

// EffectivenessDistribution reports the share of reviews per score 1..5
func (s *Service) EffectivenessDistribution(ctx context.Context, ownerID int64) ([]ScoreShare, error) {
	counts, err := s.repo.EffectivenessCounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	out := make([]ScoreShare, 0, spaced_repetition.MaxEffectiveness)
	for score := spaced_repetition.MinEffectiveness; score <= spaced_repetition.MaxEffectiveness; score++ {
		share := ScoreShare{Score: score, Count: counts[score]}
		if total > 0 {
			share.Percent = round1(float64(share.Count) / float64(total) * 100)
		}
		out = append(out, share)
	}
	return out, nil
}

// DailyReviews returns one entry per day for the last days days, oldest
// first, including days without reviews
func (s *Service) DailyReviews(ctx context.Context, ownerID int64, now time.Time, days int) ([]models.DailyReviewStat, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	first := s.startOfDay(now).AddDate(0, 0, -(days - 1))
	samples, err := s.repo.RecallSamples(ctx, ownerID, first)
	if err != nil {
		return nil, err
	}

	type acc struct {
		n   int
		sum float64
	}
	byDay := make(map[time.Time]*acc)
	for _, sample := range samples {
		day := s.startOfDay(sample.ReviewedAt)
		if byDay[day] == nil {
			byDay[day] = &acc{}
		}
		byDay[day].n++
		byDay[day].sum += sample.RecallScore
	}

	out := make([]models.DailyReviewStat, 0, days)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		stat := models.DailyReviewStat{Date: day}
		if a := byDay[day]; a != nil {
			stat.Reviews = a.n
			stat.AvgRecallScore = round1(a.sum / float64(a.n))
		}
		out = append(out, stat)
	}
	return out, nil
}

// CategoryCounts returns active items per category, largest first
func (s *Service) CategoryCounts(ctx context.Context, ownerID int64) ([]CategoryCount, error) {
	counts, err := s.repo.CategoryCounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]int, len(counts))
	for category, n := range counts {
		if category == "" {
			category = Uncategorized
		}
		merged[category] += n
	}

	out := make([]CategoryCount, 0, len(merged))
	for category, n := range merged {
		out = append(out, CategoryCount{Category: category, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// LearningEfficiency averages recall weighted by effectiveness over the
// last seven days, as a percentage
func (s *Service) LearningEfficiency(ctx context.Context, ownerID int64, now time.Time) (float64, error) {
	samples, err := s.repo.RecallSamples(ctx, ownerID, now.Add(-EfficiencyWindow))
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, nil
	}
	var sum float64
	for _, sample := range samples {
		sum += sample.RecallScore / spaced_repetition.MaxRecallScore *
			float64(sample.Effectiveness) / spaced_repetition.MaxEffectiveness
	}
	return round1(sum / float64(len(samples)) * 100), nil
}

// Overview gathers the headline numbers of the statistics screen
func (s *Service) Overview(ctx context.Context, ownerID int64, now time.Time) (*models.Overview, error) {
	var (
		ov  models.Overview
		err error
	)
	if ov.TotalItems, err = s.repo.CountActiveItems(ctx, ownerID); err != nil {
		return nil, err
	}
	if ov.MasteredItems, err = s.repo.CountMasteredItems(ctx, ownerID); err != nil {
		return nil, err
	}
	if ov.DueToday, err = s.TodayDueCount(ctx, ownerID, now); err != nil {
		return nil, err
	}
	if ov.Overdue, err = s.OverdueCount(ctx, ownerID, now); err != nil {
		return nil, err
	}
	if ov.CompletionRate, err = s.CompletionRate(ctx, ownerID, now, DefaultCompletionWindow); err != nil {
		return nil, err
	}
	if ov.StreakDays, err = s.StreakDays(ctx, ownerID, now); err != nil {
		return nil, err
	}
	if ov.Efficiency, err = s.LearningEfficiency(ctx, ownerID, now); err != nil {
		return nil, err
	}
	if ov.LastReviewAt, err = s.repo.LastReviewAt(ctx, ownerID); err != nil {
		return nil, err
	}
	return &ov, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
