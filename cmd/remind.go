package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
)

func (r *runner) remind(c *cli.Context) error {
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	poller := env.newPoller()
	if c.Bool("once") {
		n, err := poller.CheckNow(context.Background(), env.owner)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "sent %d reminders\n", n)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := poller.Start(env.owner); err != nil {
		return err
	}
	defer poller.Stop()
	fmt.Fprintf(r.out, "checking for due reviews every %s, press Ctrl+C to stop\n", env.cfg.Reminder.Interval)
	<-ctx.Done()
	return nil
}
