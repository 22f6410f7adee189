package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/reviewalarm/internal/analytics"
	"github.com/example/reviewalarm/internal/config"
	"github.com/example/reviewalarm/internal/database"
	"github.com/example/reviewalarm/internal/knowledge"
	"github.com/example/reviewalarm/internal/logger"
	"github.com/example/reviewalarm/internal/notify"
	"github.com/example/reviewalarm/internal/scheduler"
	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// appEnv is the wired application for one command run
type appEnv struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sqlx.DB
	engine   *spaced_repetition.Engine
	items    *knowledge.Service
	stats    *analytics.Service
	settings *database.SettingsRepository
	owner    int64
	notifier *notify.Multi
}

func (r *runner) open(c *cli.Context) (*appEnv, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(cfg.Database.Type, cfg.Database.DSN())
	if err != nil {
		log.Sync()
		return nil, err
	}

	owner := cfg.OwnerID
	if c.GlobalIsSet("owner") {
		owner = c.GlobalInt64("owner")
	}
	if owner <= 0 {
		db.Close()
		return nil, errors.New("owner id must be positive")
	}

	engine := spaced_repetition.NewEngine(nil, database.NewScheduleRepository(db), log)
	return &appEnv{
		cfg:      cfg,
		logger:   log,
		db:       db,
		engine:   engine,
		items:    knowledge.NewService(database.NewKnowledgeRepository(db), engine, log),
		stats:    analytics.NewService(database.NewStatisticsRepository(db), engine, engine.Stages()),
		settings: database.NewSettingsRepository(db),
		owner:    owner,
	}, nil
}

// newPoller builds the reminder poller and its notifiers
func (e *appEnv) newPoller() *scheduler.Poller {
	if e.notifier == nil {
		e.notifier = notify.FromConfig(e.cfg, e.logger)
	}
	return scheduler.NewPoller(e.engine, e.notifier, e.engine.Stages(), scheduler.Config{
		Interval:    e.cfg.Reminder.Interval,
		MinInterval: e.cfg.Reminder.MinInterval,
		Dedupe:      e.cfg.Reminder.Dedupe,
		Hours: &scheduler.HourWindow{
			Start: e.cfg.Reminder.StartHour,
			End:   e.cfg.Reminder.EndHour,
		},
		Location: time.Local,
	}, e.logger)
}

func (e *appEnv) Close() {
	if e.notifier != nil {
		if err := e.notifier.Close(); err != nil {
			e.logger.Warn("failed to close notifiers", zap.Error(err))
		}
	}
	if err := e.db.Close(); err != nil {
		e.logger.Warn("failed to close database", zap.Error(err))
	}
	e.logger.Sync()
}

// idArg parses the first positional argument as a row id
func idArg(c *cli.Context, what string) (int64, error) {
	v := c.Args().First()
	if v == "" {
		return 0, fmt.Errorf("no %s provided", what)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, v)
	}
	return id, nil
}

// usageErr shows the command help and hands the error back to Execute
func usageErr(c *cli.Context, err error) error {
	if herr := cli.ShowCommandHelp(c, c.Command.Name); herr != nil {
		return herr
	}
	return err
}
