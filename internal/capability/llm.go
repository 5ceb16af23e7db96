package capability

import (
	"context"
	"fmt"
)

// Виды LLM-узлов.
const (
	KindGemini    = "llm-gemini"
	KindChatGPT   = "llm-chatgpt"
	KindAnthropic = "llm-anthropic"
)

// Endpoint'ы внешних LLM API.
const (
	openAIEndpoint    = "https://api.openai.com/v1/chat/completions"
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	geminiEndpointFmt = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
)

// defaultMaxTokens — лимит генерации по умолчанию.
const defaultMaxTokens = 1000

// llmParams — общие параметры LLM-узла из конфигурации.
type llmParams struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// parseLLMParams извлекает общие параметры LLM-узла.
func parseLLMParams(kind string, config map[string]any, defaultModel string) (*llmParams, error) {
	p := &llmParams{
		Prompt:      GetConfigString(config, "prompt"),
		Model:       GetConfigString(config, "model"),
		Temperature: GetConfigFloat(config, "temperature"),
		MaxTokens:   GetConfigInt(config, "maxTokens"),
	}
	if p.Prompt == "" {
		return nil, fmt.Errorf("%w: %s: prompt is required", ErrInvalidConfig, kind)
	}
	if p.Model == "" {
		p.Model = defaultModel
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	return p, nil
}

// llmResponse собирает выходной объект LLM-узла.
func llmResponse(text string, tokensUsed int) *Response {
	return NewResponse(map[string]any{
		"response":   text,
		"tokensUsed": tokensUsed,
	})
}

// ChatGPTProvider — узел генерации через OpenAI Chat Completions.
//
// Credentials: openai_api_key.
type ChatGPTProvider struct {
	api      *apiClient
	endpoint string
}

// NewChatGPTProvider создаёт новый ChatGPTProvider.
func NewChatGPTProvider() *ChatGPTProvider {
	return &ChatGPTProvider{api: newAPIClient(), endpoint: openAIEndpoint}
}

// Kind возвращает вид узла.
func (p *ChatGPTProvider) Kind() string {
	return KindChatGPT
}

// Invoke выполняет запрос к OpenAI.
func (p *ChatGPTProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	apiKey, err := req.Credential("openai_api_key")
	if err != nil {
		return nil, err
	}
	params, err := parseLLMParams(KindChatGPT, req.Config, "gpt-4")
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"model":       params.Model,
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": params.Prompt},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + apiKey}

	result, err := p.api.postJSON(ctx, p.endpoint, headers, body, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	text := ""
	if choices, ok := result["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg := GetConfigMap(choice, "message"); msg != nil {
				text = GetConfigString(msg, "content")
			}
		}
	}
	tokens := 0
	if usage := GetConfigMap(result, "usage"); usage != nil {
		tokens = GetConfigInt(usage, "total_tokens")
	}

	return llmResponse(text, tokens), nil
}

// AnthropicProvider — узел генерации через Anthropic Messages API.
//
// Credentials: anthropic_api_key.
type AnthropicProvider struct {
	api      *apiClient
	endpoint string
}

// NewAnthropicProvider создаёт новый AnthropicProvider.
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{api: newAPIClient(), endpoint: anthropicEndpoint}
}

// Kind возвращает вид узла.
func (p *AnthropicProvider) Kind() string {
	return KindAnthropic
}

// Invoke выполняет запрос к Anthropic.
func (p *AnthropicProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	apiKey, err := req.Credential("anthropic_api_key")
	if err != nil {
		return nil, err
	}
	params, err := parseLLMParams(KindAnthropic, req.Config, "claude-3-sonnet")
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"model":       params.Model,
		"temperature": params.Temperature,
		"max_tokens":  params.MaxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": params.Prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": "2023-06-01",
	}

	result, err := p.api.postJSON(ctx, p.endpoint, headers, body, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	text := ""
	if content, ok := result["content"].([]any); ok && len(content) > 0 {
		if block, ok := content[0].(map[string]any); ok {
			text = GetConfigString(block, "text")
		}
	}
	tokens := 0
	if usage := GetConfigMap(result, "usage"); usage != nil {
		tokens = GetConfigInt(usage, "input_tokens") + GetConfigInt(usage, "output_tokens")
	}

	return llmResponse(text, tokens), nil
}

// GeminiProvider — узел генерации через Google Gemini.
//
// Credentials: google_api_key.
type GeminiProvider struct {
	api         *apiClient
	endpointFmt string
}

// NewGeminiProvider создаёт новый GeminiProvider.
func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{api: newAPIClient(), endpointFmt: geminiEndpointFmt}
}

// Kind возвращает вид узла.
func (p *GeminiProvider) Kind() string {
	return KindGemini
}

// Invoke выполняет запрос к Gemini.
func (p *GeminiProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	apiKey, err := req.Credential("google_api_key")
	if err != nil {
		return nil, err
	}
	params, err := parseLLMParams(KindGemini, req.Config, "gemini-pro")
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": params.Prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     params.Temperature,
			"maxOutputTokens": params.MaxTokens,
		},
	}
	headers := map[string]string{"x-goog-api-key": apiKey}

	endpoint := fmt.Sprintf(p.endpointFmt, params.Model)
	result, err := p.api.postJSON(ctx, endpoint, headers, body, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	text := ""
	if candidates, ok := result["candidates"].([]any); ok && len(candidates) > 0 {
		if cand, ok := candidates[0].(map[string]any); ok {
			if content := GetConfigMap(cand, "content"); content != nil {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]any); ok {
						text = GetConfigString(part, "text")
					}
				}
			}
		}
	}
	tokens := 0
	if usage := GetConfigMap(result, "usageMetadata"); usage != nil {
		tokens = GetConfigInt(usage, "totalTokenCount")
	}

	return llmResponse(text, tokens), nil
}
