package capability

import (
	"context"
	"fmt"
	"time"
)

// Виды telegram-узлов.
const (
	KindTelegramSend = "telegram-send"
	KindTelegramWait = "telegram-wait"
)

const (
	// telegramAPIBase — базовый URL Telegram Bot API.
	telegramAPIBase = "https://api.telegram.org"

	// telegramPollInterval — интервал опроса getUpdates.
	telegramPollInterval = 2 * time.Second

	// defaultWaitTimeout — таймаут ожидания ответа по умолчанию.
	defaultWaitTimeout = 300
)

// TelegramSendProvider — узел отправки сообщения в Telegram.
//
// Конфигурация:
//
//	{
//	    "chatId": "@channel или числовой ID",
//	    "message": "текст сообщения",
//	    "parseMode": "HTML"  // HTML | Markdown | none
//	}
//
// Credentials: telegram_bot_token.
type TelegramSendProvider struct {
	api  *apiClient
	base string
}

// NewTelegramSendProvider создаёт новый TelegramSendProvider.
func NewTelegramSendProvider() *TelegramSendProvider {
	return &TelegramSendProvider{api: newAPIClient(), base: telegramAPIBase}
}

// Kind возвращает вид узла.
func (p *TelegramSendProvider) Kind() string {
	return KindTelegramSend
}

// Invoke отправляет сообщение через Bot API.
func (p *TelegramSendProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	token, err := req.Credential("telegram_bot_token")
	if err != nil {
		return nil, err
	}

	chatID := GetConfigString(req.Config, "chatId")
	message := GetConfigString(req.Config, "message")
	if chatID == "" || message == "" {
		return nil, fmt.Errorf("%w: %s: chatId and message are required",
			ErrInvalidConfig, KindTelegramSend)
	}

	body := map[string]any{
		"chat_id": chatID,
		"text":    message,
	}
	if mode := GetConfigString(req.Config, "parseMode"); mode != "" && mode != "none" {
		body["parse_mode"] = mode
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", p.base, token)
	result, err := p.api.postJSON(ctx, endpoint, nil, body, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("telegram sendMessage: %w", err)
	}

	messageID := 0
	if msg := GetConfigMap(result, "result"); msg != nil {
		messageID = GetConfigInt(msg, "message_id")
	}

	return NewResponse(map[string]any{
		"messageId": messageID,
		"success":   true,
	}), nil
}

// TelegramWaitProvider — узел ожидания ответа пользователя.
//
// Опрашивает getUpdates, пока не придёт сообщение из нужного чата
// или не истечёт таймаут из конфигурации.
//
// Конфигурация:
//
//	{
//	    "chatId": "чат, из которого ждём ответ",
//	    "timeout": 300,        // секунды
//	    "expectedType": "text" // text | photo | document | any
//	}
type TelegramWaitProvider struct {
	api  *apiClient
	base string
}

// NewTelegramWaitProvider создаёт новый TelegramWaitProvider.
func NewTelegramWaitProvider() *TelegramWaitProvider {
	return &TelegramWaitProvider{api: newAPIClient(), base: telegramAPIBase}
}

// Kind возвращает вид узла.
func (p *TelegramWaitProvider) Kind() string {
	return KindTelegramWait
}

// Invoke ждёт ответ пользователя.
func (p *TelegramWaitProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	token, err := req.Credential("telegram_bot_token")
	if err != nil {
		return nil, err
	}

	chatID := GetConfigString(req.Config, "chatId")
	if chatID == "" {
		return nil, fmt.Errorf("%w: %s: chatId is required", ErrInvalidConfig, KindTelegramWait)
	}

	timeoutSec := GetConfigInt(req.Config, "timeout")
	if timeoutSec <= 0 {
		timeoutSec = defaultWaitTimeout
	}
	expectedType := GetConfigString(req.Config, "expectedType")
	if expectedType == "" {
		expectedType = "text"
	}

	deadline := time.Now().Add(time.Duration(timeoutSec) * time.Second)
	offset := 0

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: no response from chat %s within %ds",
				ErrInvokeTimeout, chatID, timeoutSec)
		}

		updates, err := p.fetchUpdates(ctx, token, offset)
		if err != nil {
			return nil, fmt.Errorf("telegram getUpdates: %w", err)
		}

		for _, update := range updates {
			offset = GetConfigInt(update, "update_id") + 1

			msg := GetConfigMap(update, "message")
			if msg == nil {
				continue
			}
			chat := GetConfigMap(msg, "chat")
			if chat == nil || !chatMatches(chat, chatID) {
				continue
			}

			text, msgType := classifyMessage(msg)
			if expectedType != "any" && msgType != expectedType {
				continue
			}

			return NewResponse(map[string]any{
				"response":    text,
				"messageType": msgType,
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
			}), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrInvokeCancelled, ctx.Err())
		case <-time.After(telegramPollInterval):
		}
	}
}

// fetchUpdates запрашивает новые сообщения начиная с offset.
func (p *TelegramWaitProvider) fetchUpdates(ctx context.Context, token string, offset int) ([]map[string]any, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?timeout=0&offset=%d", p.base, token, offset)

	result, err := p.api.getJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	raw, ok := result["result"].([]any)
	if !ok {
		return nil, nil
	}

	updates := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			updates = append(updates, m)
		}
	}
	return updates, nil
}

// chatMatches сравнивает чат из update с chatId из конфигурации.
// chatId может быть числовым ID или @username.
func chatMatches(chat map[string]any, chatID string) bool {
	if fmt.Sprintf("%v", chat["id"]) == chatID {
		return true
	}
	if username := GetConfigString(chat, "username"); username != "" {
		return "@"+username == chatID
	}
	return false
}

// classifyMessage определяет тип сообщения и извлекает текст.
func classifyMessage(msg map[string]any) (text, msgType string) {
	switch {
	case msg["photo"] != nil:
		return GetConfigString(msg, "caption"), "photo"
	case msg["document"] != nil:
		return GetConfigString(msg, "caption"), "document"
	default:
		return GetConfigString(msg, "text"), "text"
	}
}
