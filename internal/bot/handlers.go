package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/reviewalarm/internal/knowledge"
	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/example/reviewalarm/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Callback data
const (
	callbackMainMenu  = "main_menu"
	callbackDue       = "due"
	callbackStats     = "stats"
	callbackRemindOn  = "remind_on"
	callbackRemindOff = "remind_off"

	reviewPrefix = "review_"
	ratePrefix   = "rate_"
)

const helpText = "Spaced repetition reminders\n\n" +
	"/add title | content | category - add an item, the first review is due now\n" +
	"/due - reviews that are due\n" +
	"/stats - your progress\n" +
	"/remind on|off - switch reminders\n\n" +
	"Reviews follow the forgetting curve: now, 1 hour, 12 hours, 1 day, 4 days, 7 days, 15 days. " +
	"Rate each review from 1 to 5; a 1 sends the item back one stage."

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	switch message.Command() {
	case "start", "help":
		return b.showMainMenu(chatID, helpText)
	case "add":
		return b.handleAdd(ctx, chatID, message.CommandArguments())
	case "due":
		return b.handleDue(ctx, chatID)
	case "stats":
		return b.handleStats(ctx, chatID)
	case "remind":
		switch strings.TrimSpace(message.CommandArguments()) {
		case "on":
			return b.handleRemind(ctx, chatID, true)
		case "off":
			return b.handleRemind(ctx, chatID, false)
		default:
			return b.sendMessage(tgbotapi.NewMessage(chatID, "Usage: /remind on|off"))
		}
	default:
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Unknown command, see /help"))
	}
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	// Always answer the callback query to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback", zap.Error(err))
	}

	chatID := callback.Message.Chat.ID
	switch data := callback.Data; {
	case data == callbackMainMenu:
		return b.showMainMenu(chatID, "Main menu")
	case data == callbackDue:
		return b.handleDue(ctx, chatID)
	case data == callbackStats:
		return b.handleStats(ctx, chatID)
	case data == callbackRemindOn:
		return b.handleRemind(ctx, chatID, true)
	case data == callbackRemindOff:
		return b.handleRemind(ctx, chatID, false)
	case strings.HasPrefix(data, reviewPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, reviewPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid schedule ID in callback data: %w", err)
		}
		return b.showRatingKeyboard(chatID, id)
	case strings.HasPrefix(data, ratePrefix):
		id, rating, err := parseRating(strings.TrimPrefix(data, ratePrefix))
		if err != nil {
			return err
		}
		return b.handleRate(ctx, chatID, id, rating)
	default:
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Unknown action"))
	}
}

// parseRating reads "<schedule id>_<rating>"
func parseRating(s string) (int64, int, error) {
	idPart, ratingPart, ok := strings.Cut(s, "_")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rating callback %q", s)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule ID in callback data: %w", err)
	}
	rating, err := strconv.Atoi(ratingPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid rating in callback data: %w", err)
	}
	return id, rating, nil
}

func (b *Bot) showMainMenu(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "Due reviews", CallbackData: callbackDue}},
		{{Text: "Statistics", CallbackData: callbackStats}},
		{
			{Text: "Reminders on", CallbackData: callbackRemindOn},
			{Text: "Reminders off", CallbackData: callbackRemindOff},
		},
	}
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) error {
	parts := strings.SplitN(args, "|", 3)
	if len(parts) < 2 {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Usage: /add title | content | category"))
	}
	in := knowledge.Input{Title: parts[0], Content: parts[1]}
	if len(parts) == 3 {
		in.Category = parts[2]
	}

	item, sched, err := b.items.Add(ctx, b.config.OwnerID, in, b.now())
	var verr *spaced_repetition.ValidationError
	switch {
	case errors.As(err, &verr):
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Not added: "+verr.Error()))
	case err != nil:
		return err
	}

	text := fmt.Sprintf("Added %q.", item.Title)
	if sched != nil {
		text += " The first review is due now."
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if sched != nil {
		msg.ReplyMarkup = createKeyboard([][]MenuButton{
			{{Text: "Review now", CallbackData: reviewPrefix + strconv.FormatInt(sched.ID, 10)}},
		})
	}
	return b.sendMessage(msg)
}

func (b *Bot) handleDue(ctx context.Context, chatID int64) error {
	due, err := b.engine.FindDueSchedules(ctx, b.config.OwnerID, b.now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return b.showMainMenu(chatID, "Nothing to review right now.")
	}

	listed := due
	if len(listed) > b.config.MaxDueListed {
		listed = listed[:b.config.MaxDueListed]
	}
	stages := b.engine.Stages()
	var text strings.Builder
	fmt.Fprintf(&text, "%d reviews due:\n\n", len(due))
	buttons := make([][]MenuButton, 0, len(listed))
	for _, v := range listed {
		fmt.Fprintf(&text, "[%s] %s\n", stages.LabelFor(v.Stage), v.Title)
		buttons = append(buttons, []MenuButton{{
			Text:         "Review " + v.Title,
			CallbackData: reviewPrefix + strconv.FormatInt(v.ScheduleID, 10),
		}})
	}
	if len(due) > len(listed) {
		fmt.Fprintf(&text, "...and %d more\n", len(due)-len(listed))
	}

	msg := tgbotapi.NewMessage(chatID, text.String())
	msg.ReplyMarkup = createKeyboard(buttons)
	return b.sendMessage(msg)
}

func (b *Bot) showRatingKeyboard(chatID, scheduleID int64) error {
	row := make([]MenuButton, 0, 5)
	for rating := 1; rating <= 5; rating++ {
		row = append(row, MenuButton{
			Text:         strconv.Itoa(rating),
			CallbackData: fmt.Sprintf("%s%d_%d", ratePrefix, scheduleID, rating),
		})
	}
	msg := tgbotapi.NewMessage(chatID, "How well did you remember it? 1 = forgot, 5 = perfect")
	msg.ReplyMarkup = createKeyboard([][]MenuButton{row})
	return b.sendMessage(msg)
}

func (b *Bot) handleRate(ctx context.Context, chatID, scheduleID int64, rating int) error {
	out, err := b.engine.CompleteReview(ctx, spaced_repetition.CompleteRequest{
		ScheduleID:    scheduleID,
		OwnerID:       b.config.OwnerID,
		Effectiveness: rating,
		RecallScore:   recallForRating(rating),
		Now:           b.now(),
	})
	var verr *spaced_repetition.ValidationError
	switch {
	case errors.Is(err, spaced_repetition.ErrPrecondition):
		return b.sendMessage(tgbotapi.NewMessage(chatID, "This review was already handled."))
	case errors.As(err, &verr):
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Not recorded: "+verr.Error()))
	case err != nil:
		return err
	}

	if out.Mastered {
		return b.showMainMenu(chatID, "Done! You have mastered this item.")
	}
	stages := b.engine.Stages()
	text := fmt.Sprintf("Recorded. Next review: %s (%s), due %s.",
		stages.LabelFor(out.NextStage),
		stages.DescriptionFor(out.NextStage),
		out.Next.DueAt.Local().Format("02.01.2006 15:04"))
	return b.showMainMenu(chatID, text)
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) error {
	ov, err := b.stats.Overview(ctx, b.config.OwnerID, b.now())
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Statistics\n\n"+
		"Items: %d (%d mastered)\n"+
		"Due today: %d (%d overdue)\n"+
		"Completion over 30 days: %.1f%%\n"+
		"Streak: %d days",
		ov.TotalItems, ov.MasteredItems, ov.DueToday, ov.Overdue, ov.CompletionRate, ov.StreakDays)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "Back to menu", CallbackData: callbackMainMenu}},
	})
	return b.sendMessage(msg)
}

func (b *Bot) handleRemind(ctx context.Context, chatID int64, enabled bool) error {
	var text string
	if enabled {
		started, err := b.poller.Start(b.config.OwnerID)
		if err != nil {
			return err
		}
		text = "Reminders are on."
		if !started {
			text = "Reminders are already running."
		}
	} else {
		b.poller.Stop()
		text = "Reminders are off."
	}

	if b.settings != nil {
		defaults := models.ReminderSettings{
			IntervalSeconds: b.poller.Status().PeriodSeconds,
			EndHour:         23,
		}
		if err := b.settings.SetEnabled(ctx, b.config.OwnerID, enabled, defaults); err != nil {
			b.logger.Warn("failed to save reminder settings", zap.Error(err))
		}
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}
