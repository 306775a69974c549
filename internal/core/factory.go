package core

import (
	"fmt"

	"github.com/keepmind9/relaybot/internal/bot"
	"github.com/keepmind9/relaybot/internal/connection"
)

// NewConnection builds the connection described by cfg
func NewConnection(cfg ConnectionConfig, config *Config) (connection.Connection, error) {
	pause := config.ReconnectPause()

	if cfg.Type == TypeLine {
		return connection.NewLineConnection(connection.LineConfig{
			ShortID:        cfg.ID,
			Nick:           cfg.Nick,
			Address:        cfg.Address,
			ReconnectPause: pause,
			SendRate:       cfg.SendRate,
			SendBurst:      cfg.SendBurst,
		}), nil
	}

	adapter, err := newBotAdapter(cfg)
	if err != nil {
		return nil, err
	}
	return bot.NewConnection(adapter, bot.ConnectionConfig{
		ShortID:        cfg.ID,
		Nick:           cfg.Nick,
		Channel:        cfg.ChannelID,
		ReconnectPause: pause,
	}), nil
}

func newBotAdapter(cfg ConnectionConfig) (bot.BotAdapter, error) {
	switch cfg.Type {
	case TypeDiscord:
		return bot.NewDiscordBot(cfg.Token, cfg.ChannelID), nil
	case TypeTelegram:
		return bot.NewTelegramBot(cfg.Token), nil
	case TypeFeishu:
		feishu := bot.NewFeishuBot(cfg.AppID, cfg.AppSecret)
		feishu.SetEventSecurity(cfg.EncryptKey, cfg.VerificationToken)
		return feishu, nil
	case TypeDingTalk:
		return bot.NewDingTalkBot(cfg.AppID, cfg.AppSecret), nil
	default:
		return nil, fmt.Errorf("unsupported connection type: %s", cfg.Type)
	}
}

// NewConnections builds every configured connection
func NewConnections(config *Config) ([]connection.Connection, error) {
	conns := make([]connection.Connection, 0, len(config.Connections))
	for _, cfg := range config.Connections {
		conn, err := NewConnection(cfg, config)
		if err != nil {
			return nil, fmt.Errorf("connection %s: %w", cfg.ID, err)
		}
		conns = append(conns, conn)
	}
	return conns, nil
}
