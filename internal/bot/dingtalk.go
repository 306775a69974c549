package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/sirupsen/logrus"
)

// DingTalkReplier posts text to a conversation's session webhook
type DingTalkReplier interface {
	SimpleReplyText(ctx context.Context, sessionWebhook string, content []byte) error
}

// DingTalkBot implements BotAdapter interface for DingTalk using the stream connection.
//
// DingTalk has no "send to conversation" call for chatbots; replies go to the
// session webhook delivered with each inbound message, so the latest webhook
// per conversation is remembered.
type DingTalkBot struct {
	mu             sync.RWMutex
	clientID       string
	clientSecret   string
	streamClient   *client.StreamClient
	replier        DingTalkReplier
	webhooks       map[string]string
	messageHandler func(BotMessage)
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewDingTalkBot creates a new DingTalk bot instance
func NewDingTalkBot(clientID, clientSecret string) *DingTalkBot {
	return &DingTalkBot{
		clientID:     clientID,
		clientSecret: clientSecret,
		replier:      chatbot.NewChatbotReplier(),
		webhooks:     make(map[string]string),
		ctx:          context.Background(),
	}
}

// Start establishes the stream connection to DingTalk and begins listening for messages
func (d *DingTalkBot) Start(messageHandler func(BotMessage)) error {
	d.SetMessageHandler(messageHandler)

	logger.WithFields(logrus.Fields{
		"client_id": maskSecret(d.clientID),
	}).Info("starting-dingtalk-bot-with-websocket-long-connection")

	credential := client.NewAppCredentialConfig(d.clientID, d.clientSecret)
	streamClient := client.NewStreamClient(client.WithAppCredential(credential))
	streamClient.RegisterChatBotCallbackRouter(d.handleMessageReceive)

	ctx, cancel := context.WithCancel(context.Background())
	if err := streamClient.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start dingtalk stream: %w", err)
	}

	d.mu.Lock()
	d.streamClient = streamClient
	d.ctx, d.cancel = ctx, cancel
	d.mu.Unlock()

	logger.Info("dingtalk-websocket-long-connection-started")
	return nil
}

// handleMessageReceive handles incoming message events from DingTalk
func (d *DingTalkBot) handleMessageReceive(ctx context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
	if data == nil {
		return []byte(""), nil
	}

	logger.WithFields(logrus.Fields{
		"platform":          "dingtalk",
		"conversation_id":   data.ConversationId,
		"conversation_type": data.ConversationType,
		"sender_staff_id":   data.SenderStaffId,
		"msg_id":            data.MsgId,
		"msg_type":          data.Msgtype,
	}).Debug("received-dingtalk-message-event-parsed")

	if data.SessionWebhook != "" && data.ConversationId != "" {
		d.mu.Lock()
		d.webhooks[data.ConversationId] = data.SessionWebhook
		d.mu.Unlock()
	}

	if data.Msgtype != "text" {
		return []byte(""), nil
	}

	userID := data.SenderStaffId
	if userID == "" {
		userID = data.SenderId
	}

	if handler := d.GetMessageHandler(); handler != nil {
		handler(BotMessage{
			Platform:  "dingtalk",
			Event:     EventText,
			UserID:    userID,
			Nick:      data.SenderNick,
			Channel:   data.ConversationId,
			Content:   strings.TrimSpace(data.Text.Content),
			Timestamp: time.Now(),
		})
	}

	// empty response means no error
	return []byte(""), nil
}

// SendMessage replies to a DingTalk conversation through its session webhook
func (d *DingTalkBot) SendMessage(conversationID, message string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID is required for DingTalk")
	}

	d.mu.RLock()
	webhook := d.webhooks[conversationID]
	ctx := d.ctx
	d.mu.RUnlock()

	if webhook == "" {
		return fmt.Errorf("no session webhook known for conversation %s", conversationID)
	}

	if len(message) > constants.MaxDingTalkMessageLength {
		logger.WithFields(logrus.Fields{
			"original_length": len(message),
			"max_length":      constants.MaxDingTalkMessageLength,
		}).Info("truncating-message-for-dingtalk-limit")
		message = truncate(message, constants.MaxDingTalkMessageLength)
	}

	if err := d.replier.SimpleReplyText(ctx, webhook, []byte(message)); err != nil {
		logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"error":           err,
		}).Error("failed-to-send-message-to-dingtalk")
		return fmt.Errorf("failed to send message to conversation %s: %w", conversationID, err)
	}

	logger.WithField("conversation_id", conversationID).Debug("message-sent-to-dingtalk")
	return nil
}

// Stop closes the DingTalk stream connection and cleans up resources
func (d *DingTalkBot) Stop() error {
	d.mu.Lock()
	streamClient := d.streamClient
	cancel := d.cancel
	d.streamClient = nil
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if streamClient != nil {
		streamClient.Close()
	}

	logger.Info("dingtalk-bot-stopped")
	return nil
}

// SetMessageHandler sets the message handler in a thread-safe manner
func (d *DingTalkBot) SetMessageHandler(handler func(BotMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messageHandler = handler
}

// GetMessageHandler gets the message handler in a thread-safe manner
func (d *DingTalkBot) GetMessageHandler() func(BotMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.messageHandler
}
