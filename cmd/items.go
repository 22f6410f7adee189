package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/reviewalarm/internal/excel"
	"github.com/example/reviewalarm/internal/knowledge"
	"github.com/example/reviewalarm/pkg/models"
	"github.com/urfave/cli"
)

const timeLayout = "2006-01-02 15:04"

var importFlags = []cli.Flag{
	cli.StringFlag{Name: "sheet", Usage: "sheet to import (default: first sheet)"},
	cli.IntFlag{Name: "start-row", Value: 2, Usage: "first data row, 1-based"},
	cli.StringFlag{Name: "title-col", Value: "A", Usage: "column holding the title"},
	cli.StringFlag{Name: "content-col", Value: "B", Usage: "column holding the content"},
	cli.StringFlag{Name: "category-col", Value: "C", Usage: "column holding the category, empty to skip"},
}

func (r *runner) add(c *cli.Context) error {
	if c.NArg() < 2 {
		return usageErr(c, errors.New("title and content are required"))
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	item, sched, err := env.items.Add(context.Background(), env.owner, knowledge.Input{
		Title:    c.Args().Get(0),
		Content:  strings.Join(c.Args().Tail(), " "),
		Category: c.String("category"),
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "added item %d %q\n", item.ID, item.Title)
	if sched != nil {
		fmt.Fprintf(r.out, "first review (schedule %d) due %s\n", sched.ID, sched.DueAt.Local().Format(timeLayout))
	}
	return nil
}

func (r *runner) list(c *cli.Context) error {
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	items, err := env.items.List(context.Background(), env.owner, !c.Bool("all"))
	if err != nil {
		return err
	}
	r.printItems(items)
	return nil
}

func (r *runner) search(c *cli.Context) error {
	term := c.Args().First()
	if term == "" {
		return usageErr(c, errors.New("no search term provided"))
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	items, err := env.items.Search(context.Background(), env.owner, term)
	if err != nil {
		return err
	}
	r.printItems(items)
	return nil
}

func (r *runner) printItems(items []models.KnowledgeItem) {
	if len(items) == 0 {
		fmt.Fprintln(r.out, "no items found")
		return
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tADDED\tACTIVE")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", it.ID, it.Title, it.Category, it.CreatedAt.Local().Format(timeLayout), it.IsActive)
	}
	tw.Flush()
}

func (r *runner) archive(c *cli.Context) error {
	id, err := idArg(c, "item id")
	if err != nil {
		return usageErr(c, err)
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.items.Archive(context.Background(), env.owner, id); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "archived item %d\n", id)
	return nil
}

func (r *runner) status(c *cli.Context) error {
	id, err := idArg(c, "item id")
	if err != nil {
		return usageErr(c, err)
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()
	item, err := env.items.Get(ctx, env.owner, id)
	if err != nil {
		return err
	}
	st, err := env.engine.ItemStatus(ctx, id, env.owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s: %s, %d reviews completed\n", item.Title, st.Kind, st.Completions)
	if st.ScheduleID != 0 {
		fmt.Fprintf(r.out, "next: %s (schedule %d) due %s\n",
			env.engine.Stages().LabelFor(st.Stage), st.ScheduleID, st.DueAt.Local().Format(timeLayout))
	}
	return nil
}

func (r *runner) importFile(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return usageErr(c, errors.New("no file provided"))
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := excel.NewImporter(env.items).ImportFile(context.Background(), env.owner, excel.ImportConfig{
		FilePath:       path,
		TitleColumn:    c.String("title-col"),
		ContentColumn:  c.String("content-col"),
		CategoryColumn: c.String("category-col"),
		SheetName:      c.String("sheet"),
		StartRow:       c.Int("start-row"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "processed %d rows: %d created, %d skipped\n", result.TotalProcessed, result.Created, result.Skipped)
	for _, e := range result.Errors {
		fmt.Fprintln(r.out, "  "+e)
	}
	return nil
}

func (r *runner) pull(c *cli.Context) error {
	id, err := idArg(c, "item id")
	if err != nil {
		return usageErr(c, err)
	}
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	delay := time.Duration(c.Int("delay")) * time.Minute
	sched, err := env.engine.PullForward(context.Background(), id, env.owner, time.Now(), delay)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "review (schedule %d) due %s\n", sched.ID, sched.DueAt.Local().Format(timeLayout))
	return nil
}
