package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// DiscordSessionInterface defines the interface we need from discordgo.Session
// This allows us to mock it in tests without depending on concrete types
type DiscordSessionInterface interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordBot implements BotAdapter interface for Discord
type DiscordBot struct {
	mu             sync.RWMutex
	token          string
	channelID      string
	session        DiscordSessionInterface
	newSession     func(token string) (DiscordSessionInterface, error)
	messageHandler func(BotMessage)
}

// NewDiscordBot creates a new Discord bot instance
func NewDiscordBot(token, channelID string) *DiscordBot {
	return &DiscordBot{
		token:      token,
		channelID:  channelID,
		newSession: newDiscordSession,
	}
}

// newDiscordSession creates a session that receives messages and member events
func newDiscordSession(token string) (DiscordSessionInterface, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers
	return session, nil
}

// Start establishes connection to Discord and begins listening for messages
func (d *DiscordBot) Start(messageHandler func(BotMessage)) error {
	d.SetMessageHandler(messageHandler)

	logger.WithFields(logrus.Fields{
		"token":   maskSecret(d.token),
		"channel": d.channelID,
	}).Info("starting-discord-bot")

	session, err := d.newSession(d.token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	session.AddHandler(d.handleMessageCreate)
	session.AddHandler(d.handleMemberAdd)
	session.AddHandler(d.handleMemberRemove)
	session.AddHandler(d.handleMemberUpdate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	d.mu.Lock()
	d.session = session
	d.mu.Unlock()
	return nil
}

func (d *DiscordBot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	// Ignore messages from bots, including our own
	if m.Author.Bot {
		return
	}

	logger.WithFields(logrus.Fields{
		"platform": "discord",
		"user_id":  m.Author.ID,
		"username": m.Author.Username,
		"channel":  m.ChannelID,
		"content":  m.Content,
	}).Debug("received-discord-message")

	d.emit(BotMessage{
		Platform:  "discord",
		Event:     EventText,
		UserID:    m.Author.ID,
		Nick:      m.Author.Username,
		Channel:   m.ChannelID,
		Content:   m.Content,
		Timestamp: time.Now(),
	})
}

func (d *DiscordBot) handleMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m == nil || m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	d.emit(BotMessage{
		Platform:  "discord",
		Event:     EventJoin,
		UserID:    m.User.ID,
		Nick:      memberName(m.Member),
		Timestamp: time.Now(),
	})
}

func (d *DiscordBot) handleMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m == nil || m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	d.emit(BotMessage{
		Platform:  "discord",
		Event:     EventLeave,
		UserID:    m.User.ID,
		Nick:      memberName(m.Member),
		Timestamp: time.Now(),
	})
}

func (d *DiscordBot) handleMemberUpdate(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m == nil || m.Member == nil || m.User == nil || m.BeforeUpdate == nil {
		return
	}
	before, after := memberName(m.BeforeUpdate), memberName(m.Member)
	if before == after {
		return
	}
	d.emit(BotMessage{
		Platform:  "discord",
		Event:     EventNick,
		UserID:    m.User.ID,
		Nick:      after,
		OldNick:   before,
		Timestamp: time.Now(),
	})
}

func (d *DiscordBot) emit(msg BotMessage) {
	if handler := d.GetMessageHandler(); handler != nil {
		handler(msg)
	}
}

// memberName prefers the guild nickname over the account name
func memberName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.Username
	}
	return ""
}

// SendMessage sends a message to a Discord channel
func (d *DiscordBot) SendMessage(channel, message string) error {
	d.mu.RLock()
	session := d.session
	channelID := d.channelID
	d.mu.RUnlock()

	if session == nil {
		return fmt.Errorf("discord session not initialized")
	}

	// Use configured channel if not specified
	targetChannel := channel
	if targetChannel == "" {
		targetChannel = channelID
	}

	if len(message) > constants.MaxDiscordMessageLength {
		logger.WithFields(logrus.Fields{
			"original_length": len(message),
			"max_length":      constants.MaxDiscordMessageLength,
		}).Info("truncating-message-for-discord-limit")
		message = truncate(message, constants.MaxDiscordMessageLength)
	}

	_, err := session.ChannelMessageSend(targetChannel, message)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"channel": targetChannel,
			"error":   err,
		}).Error("failed-to-send-message-to-discord")
		return fmt.Errorf("failed to send message to channel %s: %w", targetChannel, err)
	}

	logger.WithField("channel", targetChannel).Debug("message-sent-to-discord")
	return nil
}

// Stop closes the Discord connection and cleans up resources
func (d *DiscordBot) Stop() error {
	d.mu.Lock()
	session := d.session
	d.session = nil
	d.mu.Unlock()

	if session == nil {
		return nil
	}

	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

// SetMessageHandler sets the message handler in a thread-safe manner
func (d *DiscordBot) SetMessageHandler(handler func(BotMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageHandler = handler
}

// GetMessageHandler gets the message handler in a thread-safe manner
func (d *DiscordBot) GetMessageHandler() func(BotMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.messageHandler
}
