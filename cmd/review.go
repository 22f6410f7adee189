package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/urfave/cli"
)

func (r *runner) due(c *cli.Context) error {
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	views, err := env.engine.FindDueSchedules(context.Background(), env.owner, time.Now())
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Fprintln(r.out, "nothing to review")
		return nil
	}
	stages := env.engine.Stages()
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEDULE\tITEM\tTITLE\tSTAGE\tDUE")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			v.ScheduleID, v.KnowledgeItemID, v.Title, stages.LabelFor(v.Stage), v.DueAt.Local().Format(timeLayout))
	}
	return tw.Flush()
}

func (r *runner) review(c *cli.Context) error {
	id, err := idArg(c, "schedule id")
	if err != nil {
		return usageErr(c, err)
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	out, err := env.engine.CompleteReview(context.Background(), spaced_repetition.CompleteRequest{
		ScheduleID:    id,
		OwnerID:       env.owner,
		Effectiveness: c.Int("effectiveness"),
		RecallScore:   c.Float64("recall"),
		Note:          c.String("note"),
		Now:           time.Now(),
	})
	if err != nil {
		return err
	}

	stages := env.engine.Stages()
	if out.Mastered {
		fmt.Fprintln(r.out, "review recorded, item mastered")
		return nil
	}
	fmt.Fprintf(r.out, "review recorded: %s -> %s, next review (schedule %d) due %s\n",
		stages.LabelFor(out.PreviousStage), stages.LabelFor(out.NextStage),
		out.Next.ID, out.Next.DueAt.Local().Format(timeLayout))
	return nil
}

func (r *runner) stages(c *cli.Context) error {
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tDELAY\tDESCRIPTION")
	for _, s := range spaced_repetition.DefaultStages().All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Label, s.Delay, s.Description)
	}
	return tw.Flush()
}
