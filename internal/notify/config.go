package notify

import (
	"github.com/example/reviewalarm/internal/config"
	"go.uber.org/zap"
)

// FromConfig builds a fan-out notifier from every configured channel. The
// log notifier is always included as a fallback, so a reminder only counts
// as delivered once a configured channel accepts it. A channel that fails to
// initialise is logged and skipped.
func FromConfig(cfg *config.Config, logger *zap.Logger) *Multi {
	m := NewMulti(logger)
	m.AddFallback("log", NewLogNotifier(logger))

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		tg, err := NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			m.Add("telegram", tg)
		}
	}
	if cfg.Slack.WebhookURL != "" {
		m.Add("slack", NewSlackNotifier(cfg.Slack.WebhookURL))
	}
	if cfg.Discord.BotToken != "" && cfg.Discord.ChannelID != "" {
		dc, err := NewDiscordNotifier(cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			logger.Warn("discord notifier disabled", zap.Error(err))
		} else {
			m.Add("discord", dc)
		}
	}
	if cfg.Redis.Addr != "" {
		m.Add("redis", NewRedisNotifier(cfg.Redis.Addr, cfg.Redis.Channel))
	}

	logger.Info("notifiers configured", zap.Strings("notifiers", m.Names()))
	return m
}
