package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/reviewalarm/internal/api"
	"github.com/example/reviewalarm/internal/bot"
	"github.com/example/reviewalarm/internal/excel"
	"github.com/example/reviewalarm/internal/scheduler"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func (r *runner) serve(c *cli.Context) error {
	env, err := r.open(c)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := env.newPoller()
	defer poller.Stop()
	env.resumeReminders(ctx, poller)

	addr := env.cfg.HTTPAddr
	if v := c.String("addr"); v != "" {
		addr = v
	}
	handler := api.NewHandler(api.Deps{
		Engine:   env.engine,
		Items:    env.items,
		Stats:    env.stats,
		Poller:   poller,
		Importer: excel.NewImporter(env.items),
		Settings: env.settings,
		OwnerID:  env.owner,
		Logger:   env.logger,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if c.Bool("telegram-bot") {
		if err := env.startBot(ctx, poller); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		env.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	env.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		env.logger.Error("http server shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// resumeReminders restarts the poller when the owner left reminders on
func (e *appEnv) resumeReminders(ctx context.Context, poller *scheduler.Poller) {
	settings, err := e.settings.Get(ctx, e.owner)
	if err != nil {
		e.logger.Warn("failed to load reminder settings", zap.Error(err))
		return
	}
	if settings == nil || !settings.Enabled {
		return
	}
	if settings.IntervalSeconds > 0 {
		if err := poller.SetInterval(time.Duration(settings.IntervalSeconds) * time.Second); err != nil {
			e.logger.Warn("ignoring saved reminder interval",
				zap.Int("interval_seconds", settings.IntervalSeconds), zap.Error(err))
		}
	}
	if _, err := poller.Start(e.owner); err != nil {
		e.logger.Error("failed to resume reminders", zap.Error(err))
	}
}

// startBot runs the interactive Telegram bot until ctx is done
func (e *appEnv) startBot(ctx context.Context, poller *scheduler.Poller) error {
	if e.cfg.Telegram.BotToken == "" || e.cfg.Telegram.ChatID == 0 {
		return errors.New("telegram bot needs TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}
	b, err := bot.New(e.cfg.Telegram.BotToken, bot.DefaultConfig(e.cfg.Telegram.ChatID, e.owner), bot.Deps{
		Engine:   e.engine,
		Items:    e.items,
		Stats:    e.stats,
		Poller:   poller,
		Settings: e.settings,
		Logger:   e.logger.Named("telegram"),
	})
	if err != nil {
		return err
	}
	go b.Run(ctx)
	return nil
}
