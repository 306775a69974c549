package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramBot_HandleMessage(t *testing.T) {
	bot := NewTelegramBot("test-token")
	var got []BotMessage
	bot.SetMessageHandler(func(m BotMessage) { got = append(got, m) })

	chat := &tgbotapi.Chat{ID: -100}
	bot.handleMessage(&tgbotapi.Message{
		Chat: chat,
		NewChatMembers: []tgbotapi.User{
			{ID: 1, UserName: "alice"},
			{ID: 2, FirstName: "Helper", IsBot: true},
			{ID: 3, FirstName: "Bob"},
		},
	})
	bot.handleMessage(&tgbotapi.Message{
		Chat: chat,
		From: &tgbotapi.User{ID: 1, UserName: "alice"},
		Text: "hi all",
	})
	bot.handleMessage(&tgbotapi.Message{
		Chat:           chat,
		LeftChatMember: &tgbotapi.User{ID: 3, FirstName: "Bob"},
	})
	bot.handleMessage(nil)

	require.Len(t, got, 4)
	assert.Equal(t, EventJoin, got[0].Event)
	assert.Equal(t, "alice", got[0].Nick)
	assert.Equal(t, "Bob", got[1].Nick)
	assert.Equal(t, EventText, got[2].Event)
	assert.Equal(t, "hi all", got[2].Content)
	assert.Equal(t, "-100", got[2].Channel)
	assert.Equal(t, "1", got[2].UserID)
	assert.Equal(t, EventLeave, got[3].Event)
}

func TestTelegramBot_SendMessage_Errors(t *testing.T) {
	bot := NewTelegramBot("test-token")
	err := bot.SendMessage("123", "test message")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")

	bot.bot = &tgbotapi.BotAPI{}
	assert.Contains(t, bot.SendMessage("", "x").Error(), "chat ID is required")
	assert.Contains(t, bot.SendMessage("abc", "x").Error(), "invalid chat ID")
}

func TestTelegramBot_StopWithoutStart(t *testing.T) {
	assert.NoError(t, NewTelegramBot("test-token").Stop())
}

func TestFeishu_ContentRoundTrip(t *testing.T) {
	body, err := textContent("line \"one\"\nline two")
	require.NoError(t, err)
	assert.Equal(t, "line \"one\"\nline two", extractTextContent(body))
	assert.Equal(t, "not json", extractTextContent("not json"))
}

func TestFeishuBot_SendMessage_RequiresChat(t *testing.T) {
	bot := NewFeishuBot("test-app-id", "test-app-secret")
	err := bot.SendMessage("", "test message")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chat ID is required")
}

func TestFeishuBot_StopWithoutStart(t *testing.T) {
	assert.NoError(t, NewFeishuBot("id", "secret").Stop())
}

type recordingReplier struct {
	webhook string
	content string
	err     error
}

func (r *recordingReplier) SimpleReplyText(ctx context.Context, webhook string, content []byte) error {
	r.webhook = webhook
	r.content = string(content)
	return r.err
}

func TestDingTalkBot_RepliesThroughSessionWebhook(t *testing.T) {
	bot := NewDingTalkBot("test-client-id", "test-client-secret")
	replier := &recordingReplier{}
	bot.replier = replier

	var got []BotMessage
	bot.SetMessageHandler(func(m BotMessage) { got = append(got, m) })

	assert.Error(t, bot.SendMessage("conv-1", "too early"))

	data := &chatbot.BotCallbackDataModel{
		ConversationId: "conv-1",
		SenderStaffId:  "staff-1",
		SenderNick:     "alice",
		SessionWebhook: "https://example.invalid/hook",
		Msgtype:        "text",
	}
	data.Text.Content = "  hello  "
	_, err := bot.handleMessageReceive(context.Background(), data)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Nick)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "conv-1", got[0].Channel)

	require.NoError(t, bot.SendMessage("conv-1", "reply"))
	assert.Equal(t, "https://example.invalid/hook", replier.webhook)
	assert.Equal(t, "reply", replier.content)

	replier.err = errors.New("expired")
	assert.Error(t, bot.SendMessage("conv-1", "reply"))
}

func TestDingTalkBot_SendMessage_RequiresConversation(t *testing.T) {
	bot := NewDingTalkBot("test-client-id", "test-client-secret")
	err := bot.SendMessage("", "test message")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "conversation ID is required")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "abcd***wxyz", maskSecret("abcdefghijklmnopqrstuvwxyz"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	// never split a multi-byte rune
	s := strings.Repeat("é", 3)
	assert.Equal(t, "é", truncate(s, 3))
}
