package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/pkg/constants"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/sirupsen/logrus"
)

// FeishuBot implements BotAdapter interface for Feishu (Lark) using WebSocket long connection
type FeishuBot struct {
	mu                sync.RWMutex
	appID             string
	appSecret         string
	encryptKey        string // Optional, for encrypted events
	verificationToken string // Optional, for event verification
	larkClient        *lark.Client
	messageHandler    func(BotMessage)
	ctx               context.Context
	cancel            context.CancelFunc
}

// NewFeishuBot creates a new Feishu bot instance
func NewFeishuBot(appID, appSecret string) *FeishuBot {
	return &FeishuBot{
		appID:      appID,
		appSecret:  appSecret,
		larkClient: lark.NewClient(appID, appSecret),
		ctx:        context.Background(),
	}
}

// SetEventSecurity configures the optional event encryption key and verification token
func (f *FeishuBot) SetEventSecurity(encryptKey, verificationToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encryptKey = encryptKey
	f.verificationToken = verificationToken
}

// Start establishes WebSocket long connection to Feishu and begins listening for messages
func (f *FeishuBot) Start(messageHandler func(BotMessage)) error {
	f.mu.Lock()
	f.messageHandler = messageHandler
	f.ctx, f.cancel = context.WithCancel(context.Background())
	ctx := f.ctx
	verificationToken, encryptKey := f.verificationToken, f.encryptKey
	f.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"app_id": maskSecret(f.appID),
	}).Info("starting-feishu-bot-with-websocket-long-connection")

	eventDispatcher := dispatcher.NewEventDispatcher(verificationToken, encryptKey).
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			return f.handleMessageReceive(ctx, event)
		})

	wsClient := ws.NewClient(f.appID, f.appSecret,
		ws.WithEventHandler(eventDispatcher),
		ws.WithLogLevel(larkcore.LogLevelInfo),
		ws.WithAutoReconnect(true),
	)

	// Start blocks for the lifetime of the connection
	go func() {
		if err := wsClient.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithFields(logrus.Fields{
				"app_id": maskSecret(f.appID),
				"error":  err,
			}).Error("feishu-websocket-connection-failed")
		}
	}()

	logger.Info("feishu-websocket-long-connection-started")
	return nil
}

// handleMessageReceive handles incoming message events from Feishu
func (f *FeishuBot) handleMessageReceive(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}

	ev := event.Event
	var chatID, senderID, messageType, content string

	if ev.Message.ChatId != nil {
		chatID = *ev.Message.ChatId
	}
	if ev.Message.MessageType != nil {
		messageType = *ev.Message.MessageType
	}
	if ev.Message.Content != nil {
		content = extractTextContent(*ev.Message.Content)
	}
	if ev.Sender != nil && ev.Sender.SenderId != nil {
		switch {
		case ev.Sender.SenderId.UserId != nil:
			senderID = *ev.Sender.SenderId.UserId
		case ev.Sender.SenderId.OpenId != nil:
			senderID = *ev.Sender.SenderId.OpenId
		}
	}

	logger.WithFields(logrus.Fields{
		"platform":     "feishu",
		"user_id":      senderID,
		"chat_id":      chatID,
		"message_type": messageType,
		"content_len":  len(content),
	}).Debug("received-feishu-message-event-parsed")

	if messageType != "" && messageType != larkim.MsgTypeText {
		return nil
	}

	f.mu.RLock()
	handler := f.messageHandler
	f.mu.RUnlock()

	if handler != nil {
		handler(BotMessage{
			Platform:  "feishu",
			Event:     EventText,
			UserID:    senderID,
			Channel:   chatID,
			Content:   content,
			Timestamp: time.Now(),
		})
	}
	return nil
}

// SendMessage sends a message to a Feishu chat
func (f *FeishuBot) SendMessage(chatID, message string) error {
	if f.larkClient == nil {
		return fmt.Errorf("feishu client not initialized")
	}

	if chatID == "" {
		return fmt.Errorf("chat ID is required for Feishu")
	}

	if len(message) > constants.MaxFeishuMessageLength {
		logger.WithFields(logrus.Fields{
			"original_length": len(message),
			"max_length":      constants.MaxFeishuMessageLength,
		}).Info("truncating-message-for-feishu-limit")
		message = truncate(message, constants.MaxFeishuMessageLength)
	}

	contentJSON, err := textContent(message)
	if err != nil {
		return err
	}

	body := larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(chatID).
		MsgType(larkim.MsgTypeText).
		Content(contentJSON).
		Build()

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(body).
		Build()

	f.mu.RLock()
	ctx := f.ctx
	f.mu.RUnlock()

	resp, err := f.larkClient.Im.Message.Create(ctx, req)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-feishu")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}

	if !resp.Success() {
		logger.WithFields(logrus.Fields{
			"chat_id":    chatID,
			"code":       resp.Code,
			"msg":        resp.Msg,
			"request_id": resp.RequestId(),
		}).Error("failed-to-send-message-to-feishu-api-error")
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	logger.WithField("chat_id", chatID).Debug("message-sent-to-feishu")
	return nil
}

// Stop closes the Feishu WebSocket connection and cleans up resources
func (f *FeishuBot) Stop() error {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()

	// ws.Client has no Stop; the connection ends with its context
	if cancel != nil {
		cancel()
	}

	logger.Info("feishu-bot-stopped")
	return nil
}

// feishuText is the content body of a Feishu text message
type feishuText struct {
	Text string `json:"text"`
}

// extractTextContent extracts the text from a content body like {"text":"hi"}.
// Anything that is not such a body is returned unchanged.
func extractTextContent(content string) string {
	var body feishuText
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return content
	}
	return body.Text
}

// textContent builds the content body of an outgoing text message
func textContent(text string) (string, error) {
	data, err := json.Marshal(feishuText{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to encode feishu content: %w", err)
	}
	return string(data), nil
}
