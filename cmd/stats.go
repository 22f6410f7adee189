package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli"
)

func (r *runner) stats(c *cli.Context) error {
	days := c.Int("days")
	if days < 1 {
		return usageErr(c, fmt.Errorf("days must be positive, got %d", days))
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	now := time.Now()
	ov, err := env.stats.Overview(ctx, env.owner, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "items:            %d (%d mastered)\n", ov.TotalItems, ov.MasteredItems)
	fmt.Fprintf(r.out, "due today:        %d (%d overdue)\n", ov.DueToday, ov.Overdue)
	fmt.Fprintf(r.out, "completion (30d): %.1f%%\n", ov.CompletionRate)
	fmt.Fprintf(r.out, "efficiency (7d):  %.1f\n", ov.Efficiency)
	fmt.Fprintf(r.out, "streak:           %d days\n", ov.StreakDays)
	if ov.LastReviewAt != nil {
		fmt.Fprintf(r.out, "last review:      %s\n", ov.LastReviewAt.Local().Format(timeLayout))
	}

	stages, err := env.stats.StageDistribution(ctx, env.owner)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "\nopen reviews by stage:")
	for _, s := range stages {
		fmt.Fprintf(r.out, "  %-8s %d\n", s.Label, s.Count)
	}

	daily, err := env.stats.DailyReviews(ctx, env.owner, now, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "\nlast %d days:\n", days)
	for _, d := range daily {
		fmt.Fprintf(r.out, "  %s  %3d reviews  avg recall %.1f\n", d.Date.Format("2006-01-02"), d.Reviews, d.AvgRecallScore)
	}
	return nil
}
