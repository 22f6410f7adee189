package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/example/reviewalarm/internal/analytics"
	"github.com/example/reviewalarm/internal/knowledge"
	"github.com/example/reviewalarm/internal/scheduler"
	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/example/reviewalarm/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// botAPI is the part of tgbotapi.BotAPI the bot uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// SettingsStore persists whether reminders are switched on
type SettingsStore interface {
	SetEnabled(ctx context.Context, userID int64, enabled bool, defaults models.ReminderSettings) error
}

// Deps are the services the bot drives
type Deps struct {
	Engine   *spaced_repetition.Engine
	Items    *knowledge.Service
	Stats    *analytics.Service
	Poller   *scheduler.Poller
	Settings SettingsStore
	Logger   *zap.Logger
}

// Bot is an interactive Telegram front end: it lists due reviews with
// rating buttons and lets the owner add items and toggle reminders.
type Bot struct {
	api      botAPI
	config   *BotConfig
	engine   *spaced_repetition.Engine
	items    *knowledge.Service
	stats    *analytics.Service
	poller   *scheduler.Poller
	settings SettingsStore
	logger   *zap.Logger
	now      func() time.Time
}

// New connects to Telegram with token
func New(token string, config *BotConfig, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	b := newBot(api, config, deps)
	b.logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return b, nil
}

func newBot(api botAPI, config *BotConfig, deps Deps) *Bot {
	b := &Bot{
		api:      api,
		config:   config,
		engine:   deps.Engine,
		items:    deps.Items,
		stats:    deps.Stats,
		poller:   deps.Poller,
		settings: deps.Settings,
		logger:   deps.Logger,
		now:      time.Now,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

// Run handles updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = int(b.config.UpdateTimeout / time.Second)
	updates := b.api.GetUpdatesChan(updateConfig)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.Message != nil && update.Message.IsCommand():
		if !b.allowed(update.Message.Chat) {
			err = b.sendMessage(tgbotapi.NewMessage(update.Message.Chat.ID, "This bot is private."))
			break
		}
		err = b.HandleCommand(ctx, update.Message)
	case update.CallbackQuery != nil:
		if update.CallbackQuery.Message == nil || !b.allowed(update.CallbackQuery.Message.Chat) {
			return
		}
		err = b.HandleCallback(ctx, update.CallbackQuery)
	}
	if err != nil {
		b.logger.Error("failed to handle telegram update", zap.Int("update_id", update.UpdateID), zap.Error(err))
	}
}

func (b *Bot) allowed(chat *tgbotapi.Chat) bool {
	return chat != nil && chat.ID == b.config.ChatID
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) error {
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
