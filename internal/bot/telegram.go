package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// TelegramBot implements BotAdapter interface for Telegram using long polling
type TelegramBot struct {
	mu             sync.RWMutex
	token          string
	bot            *tgbotapi.BotAPI
	messageHandler func(BotMessage)
	cancel         context.CancelFunc
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(token string) *TelegramBot {
	return &TelegramBot{
		token: token,
	}
}

// Start establishes long polling connection to Telegram and begins listening for messages
func (t *TelegramBot) Start(messageHandler func(BotMessage)) error {
	t.SetMessageHandler(messageHandler)

	logger.WithFields(logrus.Fields{
		"token": maskSecret(t.token),
	}).Info("starting-telegram-bot-with-long-polling")

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err,
		}).Error("failed-to-initialize-telegram-bot")
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.bot = bot
	t.cancel = cancel
	t.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"bot_username": bot.Self.UserName,
		"bot_id":       bot.Self.ID,
	}).Info("telegram-bot-initialized-successfully")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(constants.DefaultPollTimeout.Seconds())
	u.AllowedUpdates = []string{"message"}

	updates := bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("telegram-long-polling-stopped")
				return
			case update, ok := <-updates:
				if !ok {
					logger.Info("telegram-updates-channel-closed")
					return
				}
				if update.Message != nil {
					t.handleMessage(update.Message)
				}
			}
		}
	}()

	logger.Info("telegram-long-polling-connection-started")
	return nil
}

// handleMessage turns one Telegram message into zero or more BotMessages
func (t *TelegramBot) handleMessage(message *tgbotapi.Message) {
	if message == nil {
		return
	}

	var chatID string
	if message.Chat != nil {
		chatID = strconv.FormatInt(message.Chat.ID, 10)
	}

	for i := range message.NewChatMembers {
		member := &message.NewChatMembers[i]
		if member.IsBot {
			continue
		}
		t.emit(BotMessage{
			Platform:  "telegram",
			Event:     EventJoin,
			UserID:    strconv.FormatInt(member.ID, 10),
			Nick:      telegramName(member),
			Channel:   chatID,
			Timestamp: time.Now(),
		})
	}

	if left := message.LeftChatMember; left != nil && !left.IsBot {
		t.emit(BotMessage{
			Platform:  "telegram",
			Event:     EventLeave,
			UserID:    strconv.FormatInt(left.ID, 10),
			Nick:      telegramName(left),
			Channel:   chatID,
			Timestamp: time.Now(),
		})
	}

	// Only process text messages
	if message.Text == "" || message.From == nil {
		return
	}

	logger.WithFields(logrus.Fields{
		"platform":    "telegram",
		"user_id":     message.From.ID,
		"username":    message.From.UserName,
		"chat_id":     chatID,
		"message_id":  message.MessageID,
		"content_len": len(message.Text),
	}).Debug("received-telegram-message-parsed")

	t.emit(BotMessage{
		Platform:  "telegram",
		Event:     EventText,
		UserID:    strconv.FormatInt(message.From.ID, 10),
		Nick:      telegramName(message.From),
		Channel:   chatID,
		Content:   message.Text,
		Timestamp: time.Now(),
	})
}

func (t *TelegramBot) emit(msg BotMessage) {
	if handler := t.GetMessageHandler(); handler != nil {
		handler(msg)
	}
}

// telegramName prefers the @username, then the first name
func telegramName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

// SendMessage sends a message to a Telegram chat
func (t *TelegramBot) SendMessage(chatID, message string) error {
	t.mu.RLock()
	bot := t.bot
	t.mu.RUnlock()

	if bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	if chatID == "" {
		return fmt.Errorf("chat ID is required for Telegram")
	}

	if len(message) > constants.MaxTelegramMessageLength {
		logger.WithFields(logrus.Fields{
			"original_length": len(message),
			"max_length":      constants.MaxTelegramMessageLength,
		}).Info("truncating-message-for-telegram-limit")
		message = truncate(message, constants.MaxTelegramMessageLength)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID format: %w", err)
	}

	// plain text: relayed chat content is not trusted markup
	msg := tgbotapi.NewMessage(chatIDInt, message)

	if _, err := bot.Send(msg); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-telegram")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}

	logger.WithField("chat_id", chatID).Debug("message-sent-to-telegram")
	return nil
}

// Stop closes the Telegram long polling connection and cleans up resources
func (t *TelegramBot) Stop() error {
	t.mu.Lock()
	bot := t.bot
	cancel := t.cancel
	t.bot = nil
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if bot != nil {
		bot.StopReceivingUpdates()
	}

	logger.Info("telegram-bot-stopped")
	return nil
}

// SetMessageHandler sets the message handler in a thread-safe manner
func (t *TelegramBot) SetMessageHandler(handler func(BotMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// GetMessageHandler gets the message handler in a thread-safe manner
func (t *TelegramBot) GetMessageHandler() func(BotMessage) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.messageHandler
}
