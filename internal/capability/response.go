package capability

import (
	"context"
	"encoding/json"
	"net/http"
)

// KindResponse — вид узла ответа вызывающей стороне.
const KindResponse = "response"

// ResponseProvider — узел, формирующий ответ вызывающей стороне webhook.
//
// Сам узел ничего не отправляет: он формирует выходной объект с кодом,
// телом и заголовками, а слой API читает его из журнала запуска.
//
// Конфигурация:
//
//	{
//	    "statusCode": 200,
//	    "body": "{{$node[\"LLM\"].json.response}}",
//	    "headers": "{\"Content-Type\": \"text/plain\"}"
//	}
type ResponseProvider struct{}

// NewResponseProvider создаёт новый ResponseProvider.
func NewResponseProvider() *ResponseProvider {
	return &ResponseProvider{}
}

// Kind возвращает вид узла.
func (p *ResponseProvider) Kind() string {
	return KindResponse
}

// Invoke формирует ответ.
func (p *ResponseProvider) Invoke(_ context.Context, req *Request) (*Response, error) {
	statusCode := GetConfigInt(req.Config, "statusCode")
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	headers := parseHeaders(req.Config["headers"])

	return NewResponse(map[string]any{
		"sent":       true,
		"statusCode": statusCode,
		"body":       GetConfigString(req.Config, "body"),
		"headers":    headers,
	}), nil
}

// parseHeaders принимает заголовки как объект или как JSON-строку.
func parseHeaders(v any) map[string]any {
	switch h := v.(type) {
	case map[string]any:
		return h
	case string:
		if h == "" {
			return map[string]any{}
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(h), &parsed); err != nil {
			return map[string]any{}
		}
		return parsed
	default:
		return map[string]any{}
	}
}
