package core

// Connection types accepted in the connections section
const (
	TypeLine     = "line"
	TypeDiscord  = "discord"
	TypeTelegram = "telegram"
	TypeFeishu   = "feishu"
	TypeDingTalk = "dingtalk"
)

// ConnectionTypes lists every supported connection type
func ConnectionTypes() []string {
	return []string{TypeLine, TypeDiscord, TypeTelegram, TypeFeishu, TypeDingTalk}
}

// Config represents the complete relaybot configuration structure
type Config struct {
	Nick        string             `yaml:"nick"`
	Connections []ConnectionConfig `yaml:"connections"`
	Plugins     []string           `yaml:"plugins"`
	Reconnect   ReconnectConfig    `yaml:"reconnect"`
	HookServer  HookServerConfig   `yaml:"hook_server"`
	Storage     StorageConfig      `yaml:"storage"`
	Logging     LoggingConfig      `yaml:"logging"`
	WatchConfig bool               `yaml:"watch_config"`
}

// ConnectionConfig represents one chat backend
type ConnectionConfig struct {
	ID      string `yaml:"id"`   // short id used in relays and broadcasts
	Type    string `yaml:"type"` // line/discord/telegram/feishu/dingtalk
	Nick    string `yaml:"nick"` // overrides the global nick
	Address string `yaml:"address"`

	// line only
	SendRate  float64 `yaml:"send_rate"`  // lines per second
	SendBurst int     `yaml:"send_burst"` // lines written back to back

	Token     string `yaml:"token"`      // Discord, Telegram
	ChannelID string `yaml:"channel_id"` // restricts the connection to one chat
	AppID     string `yaml:"app_id"`     // Feishu app id, DingTalk client id
	AppSecret string `yaml:"app_secret"` // Feishu app secret, DingTalk client secret

	EncryptKey        string `yaml:"encrypt_key"`        // Feishu: event encryption key (optional)
	VerificationToken string `yaml:"verification_token"` // Feishu: verification token (optional)
}

// ReconnectConfig represents the reconnect policy
type ReconnectConfig struct {
	Pause string `yaml:"pause"` // wait after the second consecutive failure (default: 5m)
}

// HookServerConfig represents HTTP Hook server configuration
type HookServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"` // default: 127.0.0.1
	Port    int    `yaml:"port"`
}

// StorageConfig represents the persistent key/value store
type StorageConfig struct {
	Path string `yaml:"path"` // SQLite file; empty keeps state in memory
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs (default: true)
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout (default: true)
}
