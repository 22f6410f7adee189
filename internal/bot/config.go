package bot

import "time"

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// ChatID is the only chat the bot answers; it acts for OwnerID there
	ChatID  int64
	OwnerID int64
	// Maximum number of due reviews listed in one message
	MaxDueListed int
	// Long-poll timeout for getUpdates
	UpdateTimeout time.Duration
}

// DefaultConfig returns the default bot configuration
func DefaultConfig(chatID, ownerID int64) *BotConfig {
	return &BotConfig{
		ChatID:        chatID,
		OwnerID:       ownerID,
		MaxDueListed:  10,
		UpdateTimeout: 60 * time.Second,
	}
}

// recallForRating maps a 1..5 button rating to a recall score
func recallForRating(rating int) float64 {
	return float64(rating * 20)
}
