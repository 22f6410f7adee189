package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/example/reviewalarm/internal/config"
	"github.com/urfave/cli"
)

const description = `reviewalarm schedules reviews of the things you learn along a
forgetting curve: 0h, 1h, 12h, 1d, 4d, 7d and 15d. Add an item, review it
when it is due, rate how well it went and the next review is planned for
you. Configuration is read from the environment and an optional .env file.`

type BuildArgs struct {
	Version string
	Commit  string
}

// runner carries what every command action needs
type runner struct {
	out        io.Writer
	loadConfig func() (*config.Config, error)
}

func Execute(args []string, bArgs BuildArgs) error {
	r := &runner{out: os.Stdout, loadConfig: config.Load}
	return r.app(bArgs).Run(args)
}

func (r *runner) app(bArgs BuildArgs) *cli.App {
	app := cli.NewApp()
	app.Name = "reviewalarm"
	app.HelpName = "reviewalarm"
	app.Usage = "spaced-repetition review scheduler"
	app.UsageText = "reviewalarm [global options] <command> [arguments...]"
	app.Description = description
	app.Version = bArgs.Version
	if bArgs.Commit != "" {
		app.Version = fmt.Sprintf("%s (%s)", bArgs.Version, bArgs.Commit)
	}
	app.Writer = r.out
	app.Flags = []cli.Flag{
		cli.Int64Flag{
			Name:  "owner, u",
			Usage: "act for this learner id (default: OWNER_ID)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP API and the reminder poller",
			Action: r.serve,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr, a", Usage: "listen address (default: HTTP_ADDR)"},
				cli.BoolFlag{Name: "telegram-bot", Usage: "also answer commands in the TELEGRAM_CHAT_ID chat"},
			},
		},
		{
			Name:      "add",
			Aliases:   []string{"a"},
			Usage:     "add a knowledge item and schedule its first review",
			ArgsUsage: "TITLE CONTENT",
			Action:    r.add,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "category, c", Usage: "item category"},
			},
		},
		{
			Name:    "list",
			Aliases: []string{"l"},
			Usage:   "list knowledge items",
			Action:  r.list,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "all, a", Usage: "include archived items"},
			},
		},
		{
			Name:      "search",
			Usage:     "search active items by title",
			ArgsUsage: "TERM",
			Action:    r.search,
		},
		{
			Name:      "archive",
			Usage:     "archive an item, its reviews stop",
			ArgsUsage: "ITEM_ID",
			Action:    r.archive,
		},
		{
			Name:      "status",
			Usage:     "show the review state of an item",
			ArgsUsage: "ITEM_ID",
			Action:    r.status,
		},
		{
			Name:      "import",
			Usage:     "import items from an xlsx or csv file",
			ArgsUsage: "FILE",
			Action:    r.importFile,
			Flags:     importFlags,
		},
		{
			Name:    "due",
			Aliases: []string{"d"},
			Usage:   "list reviews that are due now",
			Action:  r.due,
		},
		{
			Name:      "review",
			Aliases:   []string{"r"},
			Usage:     "complete a due review",
			ArgsUsage: "SCHEDULE_ID",
			Action:    r.review,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "effectiveness, e", Usage: "how well it went, 1 to 5"},
				cli.Float64Flag{Name: "recall, s", Usage: "recall score, 0 to 100"},
				cli.StringFlag{Name: "note, n", Usage: "free text note"},
			},
		},
		{
			Name:      "pull",
			Usage:     "schedule an extra review for a mastered item",
			ArgsUsage: "ITEM_ID",
			Action:    r.pull,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "delay, d", Usage: "minutes until the review is due"},
			},
		},
		{
			Name:   "stages",
			Usage:  "print the review stage ladder",
			Action: r.stages,
		},
		{
			Name:   "stats",
			Usage:  "print learning statistics",
			Action: r.stats,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "days", Value: 7, Usage: "days of review history to show"},
			},
		},
		{
			Name:   "remind",
			Usage:  "send reminders for due reviews until interrupted",
			Action: r.remind,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "once", Usage: "check once and exit"},
			},
		},
	}
	return app
}
