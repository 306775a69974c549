// Package bot provides bot adapters for various IM platforms.
//
// Each adapter handles platform-specific connection logic, message formatting
// and communication patterns. Connection wraps any adapter so the relay can
// treat a platform like any other chat backend.
//
// # Supported Platforms
//
//   - Discord: WebSocket connection with real-time message and member events
//   - Telegram: Long polling for message updates
//   - Feishu/Lark: WebSocket long connection for enterprise messaging
//   - DingTalk: Stream connection, replies through the conversation's session webhook
//
// # Usage
//
//	discordBot := bot.NewDiscordBot(token, channelID)
//	conn := bot.NewConnection(discordBot, bot.ConnectionConfig{ShortID: "dc", Nick: "relaybot"})
//	go conn.Run(ctx, engine.Process)
//
// # Thread Safety
//
// All bot adapters are thread-safe and use internal mutexes to protect
// shared state. The message handler callback may be called concurrently
// from multiple goroutines; Connection serializes those calls.
package bot

import "time"

// BotAdapter defines the interface for bot adapters
type BotAdapter interface {
	// Start starts the bot, establishes connection and begins listening for messages
	Start(messageHandler func(BotMessage)) error

	// SendMessage sends a message to the IM platform
	// Adapter is responsible for:
	//   - Truncating to platform limits
	//   - Platform-specific formatting
	SendMessage(channel, message string) error

	// Stop stops the bot and cleans up resources
	Stop() error
}

// EventKind tells what happened in a BotMessage
type EventKind string

const (
	EventText  EventKind = "text"
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
	EventNick  EventKind = "nick"
)

// BotMessage represents a bot message structure
type BotMessage struct {
	Platform  string    // feishu/discord/telegram/dingtalk
	Event     EventKind // empty means EventText
	UserID    string    // Unique user identifier
	Nick      string    // Display name; UserID when empty
	OldNick   string    // Previous display name for EventNick
	Reason    string    // Optional reason for EventLeave
	Channel   string    // Channel/session ID
	Content   string    // Message content
	Timestamp time.Time
}

// DisplayName returns the nickname the relay uses for the sender
func (m BotMessage) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.UserID
}
