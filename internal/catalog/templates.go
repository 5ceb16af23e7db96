package catalog

import "github.com/shaiso/Flowline/internal/domain"

// DefaultRegistry создаёт реестр со всеми встроенными видами узлов.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range builtinTemplates() {
		r.Register(t)
	}
	return r
}

// builtinTemplates возвращает встроенный каталог видов узлов.
func builtinTemplates() []*Template {
	return []*Template{
		{
			Kind:        "webhook",
			Label:       "Webhook",
			Description: "Принимает HTTP-запросы и запускает workflow",
			Category:    "Core",
			IsTrigger:   true,
			Ports:       []string{domain.PortDefault},
			ConfigFields: []ConfigField{
				{Key: "method", Label: "HTTP Method", Type: FieldSelect, Required: true,
					Options: []string{"GET", "POST", "PUT", "DELETE"}, Default: "POST"},
				{Key: "path", Label: "Webhook Path", Type: FieldString, Required: true, Default: "/webhook"},
			},
			OutputFields: []OutputField{
				{Key: "body", Label: "Request Body", Type: "object"},
				{Key: "headers", Label: "Request Headers", Type: "object"},
				{Key: "query", Label: "Query Parameters", Type: "object"},
			},
		},
		{
			Kind:        "form",
			Label:       "Form",
			Description: "Собирает данные через веб-форму",
			Category:    "Human in the loop",
			IsTrigger:   true,
			Ports:       []string{domain.PortDefault},
			ConfigFields: []ConfigField{
				{Key: "title", Label: "Form Title", Type: FieldString, Required: true, Default: "Data Collection Form"},
				{Key: "description", Label: "Description", Type: FieldText},
				{Key: "fields", Label: "Form Fields", Type: FieldText},
			},
			OutputFields: []OutputField{
				{Key: "formData", Label: "Form Data", Type: "object"},
				{Key: "submittedAt", Label: "Submission Time", Type: "date"},
			},
		},
		{
			Kind:        "if-condition",
			Label:       "If",
			Description: "Ветвит workflow по условию",
			Category:    "Flow",
			Ports:       []string{domain.PortTrue, domain.PortFalse},
			ConfigFields: []ConfigField{
				{Key: "value1", Label: "First Value", Type: FieldString, Required: true},
				{Key: "operator", Label: "Operator", Type: FieldSelect, Required: true,
					Options: []string{"equals", "not_equals", "greater_than", "less_than", "contains"},
					Default: "equals"},
				{Key: "value2", Label: "Second Value", Type: FieldString, Required: true},
			},
			OutputFields: []OutputField{
				{Key: "result", Label: "Condition Result", Type: "boolean"},
			},
		},
		{
			Kind:        "memory",
			Label:       "Memory",
			Description: "Сохраняет и читает данные между запусками workflow",
			Category:    "Data transformation",
			Ports:       []string{domain.PortDefault},
			ConfigFields: []ConfigField{
				{Key: "action", Label: "Action", Type: FieldSelect, Required: true,
					Options: []string{"store", "retrieve", "delete"}, Default: "store"},
				{Key: "key", Label: "Memory Key", Type: FieldString, Required: true},
				{Key: "value", Label: "Value to Store", Type: FieldText},
			},
			OutputFields: []OutputField{
				{Key: "value", Label: "Retrieved Value", Type: "string"},
				{Key: "success", Label: "Success", Type: "boolean"},
			},
		},
		{
			Kind:        "response",
			Label:       "Response",
			Description: "Формирует ответ вызывающей стороне webhook",
			Category:    "Core",
			Ports:       []string{domain.PortDefault},
			ConfigFields: []ConfigField{
				{Key: "statusCode", Label: "Status Code", Type: FieldNumber, Default: 200},
				{Key: "body", Label: "Response Body", Type: FieldText},
				{Key: "headers", Label: "Headers", Type: FieldText},
			},
			OutputFields: []OutputField{
				{Key: "sent", Label: "Response Sent", Type: "boolean"},
			},
		},
		{
			Kind:                "telegram-send",
			Label:               "Send Message",
			Description:         "Отправляет сообщение через Telegram",
			Category:            "Action in an app",
			Ports:               []string{domain.PortDefault},
			RequiredCredentials: []string{"telegram_bot_token"},
			ConfigFields: []ConfigField{
				{Key: "chatId", Label: "Chat ID", Type: FieldString, Required: true},
				{Key: "message", Label: "Message", Type: FieldText, Required: true},
				{Key: "parseMode", Label: "Parse Mode", Type: FieldSelect,
					Options: []string{"HTML", "Markdown", "none"}, Default: "HTML"},
			},
			OutputFields: []OutputField{
				{Key: "messageId", Label: "Message ID", Type: "number"},
				{Key: "success", Label: "Success", Type: "boolean"},
			},
		},
		{
			Kind:                "telegram-wait",
			Label:               "Wait for Response",
			Description:         "Ожидает ответ пользователя в Telegram",
			Category:            "Human in the loop",
			Ports:               []string{domain.PortDefault},
			RequiredCredentials: []string{"telegram_bot_token"},
			ConfigFields: []ConfigField{
				{Key: "chatId", Label: "Chat ID", Type: FieldString, Required: true},
				{Key: "timeout", Label: "Timeout (seconds)", Type: FieldNumber, Default: 300},
				{Key: "expectedType", Label: "Expected Response Type", Type: FieldSelect,
					Options: []string{"text", "photo", "document", "any"}, Default: "text"},
			},
			OutputFields: []OutputField{
				{Key: "response", Label: "User Response", Type: "string"},
				{Key: "messageType", Label: "Message Type", Type: "string"},
				{Key: "timestamp", Label: "Response Time", Type: "date"},
			},
		},
		{
			Kind:                "llm-gemini",
			Label:               "Gemini",
			Description:         "Генерирует текст через Google Gemini",
			Category:            "AI",
			Ports:               []string{domain.PortDefault},
			RequiredCredentials: []string{"google_api_key"},
			ConfigFields: []ConfigField{
				{Key: "prompt", Label: "Prompt", Type: FieldText, Required: true},
				{Key: "model", Label: "Model", Type: FieldSelect,
					Options: []string{"gemini-pro", "gemini-pro-vision"}, Default: "gemini-pro"},
				{Key: "temperature", Label: "Temperature", Type: FieldNumber, Default: 0.7},
				{Key: "maxTokens", Label: "Max Tokens", Type: FieldNumber, Default: 1000},
			},
			OutputFields: []OutputField{
				{Key: "response", Label: "Generated Text", Type: "string"},
				{Key: "tokensUsed", Label: "Tokens Used", Type: "number"},
			},
		},
		{
			Kind:                "llm-chatgpt",
			Label:               "ChatGPT",
			Description:         "Генерирует текст через OpenAI ChatGPT",
			Category:            "AI",
			Ports:               []string{domain.PortDefault},
			RequiredCredentials: []string{"openai_api_key"},
			ConfigFields: []ConfigField{
				{Key: "prompt", Label: "Prompt", Type: FieldText, Required: true},
				{Key: "model", Label: "Model", Type: FieldSelect,
					Options: []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"}, Default: "gpt-4"},
				{Key: "temperature", Label: "Temperature", Type: FieldNumber, Default: 0.7},
				{Key: "maxTokens", Label: "Max Tokens", Type: FieldNumber, Default: 1000},
			},
			OutputFields: []OutputField{
				{Key: "response", Label: "Generated Text", Type: "string"},
				{Key: "tokensUsed", Label: "Tokens Used", Type: "number"},
			},
		},
		{
			Kind:                "llm-anthropic",
			Label:               "Claude",
			Description:         "Генерирует текст через Anthropic Claude",
			Category:            "AI",
			Ports:               []string{domain.PortDefault},
			RequiredCredentials: []string{"anthropic_api_key"},
			ConfigFields: []ConfigField{
				{Key: "prompt", Label: "Prompt", Type: FieldText, Required: true},
				{Key: "model", Label: "Model", Type: FieldSelect,
					Options: []string{"claude-3-opus", "claude-3-sonnet", "claude-3-haiku"},
					Default: "claude-3-sonnet"},
				{Key: "temperature", Label: "Temperature", Type: FieldNumber, Default: 0.7},
				{Key: "maxTokens", Label: "Max Tokens", Type: FieldNumber, Default: 1000},
			},
			OutputFields: []OutputField{
				{Key: "response", Label: "Generated Text", Type: "string"},
				{Key: "tokensUsed", Label: "Tokens Used", Type: "number"},
			},
		},
		{
			Kind:                "resend-email",
			Label:               "Send Email",
			Description:         "Отправляет письмо через Resend",
			Category:            "Action in an app",
			Ports:               []string{domain.PortDefault},
			RequiredCredentials: []string{"resend_api_key"},
			ConfigFields: []ConfigField{
				{Key: "from", Label: "From Email", Type: FieldString, Required: true},
				{Key: "to", Label: "To Email", Type: FieldString, Required: true},
				{Key: "subject", Label: "Subject", Type: FieldString, Required: true},
				{Key: "html", Label: "HTML Content", Type: FieldText, Required: true},
			},
			OutputFields: []OutputField{
				{Key: "messageId", Label: "Message ID", Type: "string"},
				{Key: "success", Label: "Success", Type: "boolean"},
			},
		},
	}
}
