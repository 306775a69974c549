package constants

import "time"

// Message length limits for different platforms
const (
	// MaxDiscordMessageLength is Discord's message character limit
	MaxDiscordMessageLength = 2000
	// MaxTelegramMessageLength is Telegram's message character limit
	MaxTelegramMessageLength = 4096
	// MaxFeishuMessageLength is Feishu's message character limit
	MaxFeishuMessageLength = 20000
	// MaxDingTalkMessageLength is DingTalk's message character limit
	MaxDingTalkMessageLength = 20000
	// MaxLineLength is the longest record accepted from a line-protocol backend
	MaxLineLength = 64 * 1024
)

// Timeouts and delays
const (
	// DefaultConnectionTimeout is the timeout for establishing connections
	DefaultConnectionTimeout = 10 * time.Second
	// DefaultPollTimeout is the timeout for long polling operations
	DefaultPollTimeout = 60 * time.Second
	// DefaultReconnectPause is the wait after the second consecutive connect failure
	DefaultReconnectPause = 5 * time.Minute
	// PlaceholderDelay is how long a crash placeholder reply waits before it is sent
	PlaceholderDelay = 1500 * time.Millisecond
	// TypingDelayPerChar imitates human typing latency for delayed replies
	TypingDelayPerChar = 60 * time.Millisecond
	// MaxTypingDelay caps the typing latency of a single reply
	MaxTypingDelay = 4 * time.Second
	// HookHTTPTimeout is the timeout for hook HTTP requests
	HookHTTPTimeout = 5 * time.Second
	// ShutdownTimeout bounds how long Stop waits for the hook server and connections
	ShutdownTimeout = 5 * time.Second
	// ConfigReloadDebounce groups bursts of config file writes into one reload
	ConfigReloadDebounce = 500 * time.Millisecond
	// SeenFlushInterval is how often the seen table is written to storage
	SeenFlushInterval = time.Minute
)

// Rate limits
const (
	// DefaultSendRate is the default number of lines per second written to a line backend
	DefaultSendRate = 5
	// DefaultSendBurst is the number of lines that may be written back to back
	DefaultSendBurst = 10
)

// Message buffer sizes
const (
	// MessageChannelBufferSize is the buffer size for the inbound platform message channel
	MessageChannelBufferSize = 100
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply masking
	MinSecretLengthForMasking = 8
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// HTTPSuccessStatusCode is the standard HTTP success status code
const HTTPSuccessStatusCode = 200
