package capability

import (
	"context"
	"time"
)

// Виды триггерных узлов.
const (
	KindWebhook = "webhook"
	KindForm    = "form"
)

// WebhookTrigger — триггерный узел webhook.
//
// К моменту выполнения узла HTTP-запрос уже принят слоем API,
// поэтому узел просто публикует trigger payload как свой выход.
// Ожидаемая форма payload: {"body": ..., "headers": ..., "query": ...}.
type WebhookTrigger struct{}

// NewWebhookTrigger создаёт новый WebhookTrigger.
func NewWebhookTrigger() *WebhookTrigger {
	return &WebhookTrigger{}
}

// Kind возвращает вид узла.
func (p *WebhookTrigger) Kind() string {
	return KindWebhook
}

// Invoke публикует trigger payload.
func (p *WebhookTrigger) Invoke(_ context.Context, req *Request) (*Response, error) {
	outputs := make(map[string]any, len(req.Trigger))
	for k, v := range req.Trigger {
		outputs[k] = v
	}
	return NewResponse(outputs), nil
}

// FormTrigger — триггерный узел формы.
//
// Данные формы приходят в trigger payload; узел публикует их вместе
// со временем отправки.
type FormTrigger struct {
	// now подменяется в тестах.
	now func() time.Time
}

// NewFormTrigger создаёт новый FormTrigger.
func NewFormTrigger() *FormTrigger {
	return &FormTrigger{now: time.Now}
}

// Kind возвращает вид узла.
func (p *FormTrigger) Kind() string {
	return KindForm
}

// Invoke публикует данные формы.
func (p *FormTrigger) Invoke(_ context.Context, req *Request) (*Response, error) {
	formData := GetConfigMap(req.Trigger, "formData")
	if formData == nil {
		formData = req.Trigger
	}
	if formData == nil {
		formData = map[string]any{}
	}

	submittedAt := GetConfigString(req.Trigger, "submittedAt")
	if submittedAt == "" {
		submittedAt = p.now().UTC().Format(time.RFC3339)
	}

	return NewResponse(map[string]any{
		"formData":    formData,
		"submittedAt": submittedAt,
	}), nil
}
