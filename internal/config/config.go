package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default notification window, the whole day
const (
	DefaultNotificationStartHour = 0
	DefaultNotificationEndHour   = 23
)

// Config is the application configuration read from the environment
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
	HTTPAddr string
	// OwnerID is the learner the CLI and reminders act for
	OwnerID  int64
	Reminder ReminderConfig
	Telegram TelegramConfig
	Slack    SlackConfig
	Discord  DiscordConfig
	Redis    RedisConfig
}

type DatabaseConfig struct {
	Type string // sqlite or postgres
	Path string
	URL  string
}

// DSN returns the data source name for the configured driver
func (c DatabaseConfig) DSN() string {
	if c.Type == "postgres" || c.Type == "postgresql" {
		return c.URL
	}
	return c.Path
}

type LogConfig struct {
	Level  string
	Format string
}

type ReminderConfig struct {
	Interval    time.Duration
	MinInterval time.Duration
	Dedupe      bool
	StartHour   int
	EndHour     int
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

type SlackConfig struct {
	WebhookURL string
}

type DiscordConfig struct {
	BotToken  string
	ChannelID string
}

type RedisConfig struct {
	Addr    string
	Channel string
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Type: env("DB_TYPE", "sqlite"),
			Path: env("DB_PATH", "data/reviewalarm.db"),
			URL:  env("DATABASE_URL", ""),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "console"),
		},
		HTTPAddr: env("HTTP_ADDR", ":8080"),
		Slack:    SlackConfig{WebhookURL: env("SLACK_WEBHOOK_URL", "")},
		Discord: DiscordConfig{
			BotToken:  env("DISCORD_BOT_TOKEN", ""),
			ChannelID: env("DISCORD_CHANNEL_ID", ""),
		},
		Redis: RedisConfig{
			Addr:    env("REDIS_ADDR", ""),
			Channel: env("REDIS_CHANNEL", "reviewalarm:reminders"),
		},
		Telegram: TelegramConfig{BotToken: env("TELEGRAM_BOT_TOKEN", "")},
	}

	var err error
	if cfg.OwnerID, err = parseInt64(env("OWNER_ID", "1"), "OWNER_ID"); err != nil {
		return nil, err
	}
	if chatID := env("TELEGRAM_CHAT_ID", ""); chatID != "" {
		if cfg.Telegram.ChatID, err = parseInt64(chatID, "TELEGRAM_CHAT_ID"); err != nil {
			return nil, err
		}
	}

	interval, err := parseSeconds(env("REMINDER_INTERVAL_SECONDS", "30"), "REMINDER_INTERVAL_SECONDS")
	if err != nil {
		return nil, err
	}
	minInterval, err := parseSeconds(env("REMINDER_MIN_INTERVAL_SECONDS", "10"), "REMINDER_MIN_INTERVAL_SECONDS")
	if err != nil {
		return nil, err
	}
	if interval < minInterval {
		return nil, fmt.Errorf("REMINDER_INTERVAL_SECONDS must be at least %d", int(minInterval.Seconds()))
	}
	dedupe, err := strconv.ParseBool(env("REMINDER_DEDUPE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_DEDUPE: %w", err)
	}
	cfg.Reminder = ReminderConfig{
		Interval:    interval,
		MinInterval: minInterval,
		Dedupe:      dedupe,
		StartHour:   DefaultNotificationStartHour,
		EndHour:     DefaultNotificationEndHour,
	}

	if v := getenv("NOTIFICATION_START_HOUR"); v != "" {
		if cfg.Reminder.StartHour, err = parseHour(v, "NOTIFICATION_START_HOUR"); err != nil {
			return nil, err
		}
	}
	if v := getenv("NOTIFICATION_END_HOUR"); v != "" {
		if cfg.Reminder.EndHour, err = parseHour(v, "NOTIFICATION_END_HOUR"); err != nil {
			return nil, err
		}
	}
	if cfg.Reminder.StartHour > cfg.Reminder.EndHour {
		return nil, fmt.Errorf("NOTIFICATION_START_HOUR (%d) is after NOTIFICATION_END_HOUR (%d)",
			cfg.Reminder.StartHour, cfg.Reminder.EndHour)
	}

	switch cfg.Database.Type {
	case "sqlite", "sqlite3":
	case "postgres", "postgresql":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_TYPE=%s", cfg.Database.Type)
		}
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.Database.Type)
	}

	return cfg, nil
}

func parseInt64(v, name string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func parseSeconds(v, name string) (time.Duration, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return time.Duration(n) * time.Second, nil
}

func parseHour(v, name string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%s must be an hour between 0 and 23, got %q", name, v)
	}
	return h, nil
}
