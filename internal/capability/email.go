package capability

import (
	"context"
	"fmt"
)

// KindResendEmail — вид узла отправки почты.
const KindResendEmail = "resend-email"

// resendEndpoint — endpoint Resend API.
const resendEndpoint = "https://api.resend.com/emails"

// ResendEmailProvider — узел отправки письма через Resend.
//
// Конфигурация:
//
//	{
//	    "from": "noreply@yourdomain.com",
//	    "to": "user@example.com",
//	    "subject": "тема письма",
//	    "html": "<h1>содержимое</h1>"
//	}
//
// Credentials: resend_api_key.
type ResendEmailProvider struct {
	api      *apiClient
	endpoint string
}

// NewResendEmailProvider создаёт новый ResendEmailProvider.
func NewResendEmailProvider() *ResendEmailProvider {
	return &ResendEmailProvider{api: newAPIClient(), endpoint: resendEndpoint}
}

// Kind возвращает вид узла.
func (p *ResendEmailProvider) Kind() string {
	return KindResendEmail
}

// Invoke отправляет письмо.
func (p *ResendEmailProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	apiKey, err := req.Credential("resend_api_key")
	if err != nil {
		return nil, err
	}

	from := GetConfigString(req.Config, "from")
	to := GetConfigString(req.Config, "to")
	subject := GetConfigString(req.Config, "subject")
	html := GetConfigString(req.Config, "html")
	if from == "" || to == "" || subject == "" || html == "" {
		return nil, fmt.Errorf("%w: %s: from, to, subject and html are required",
			ErrInvalidConfig, KindResendEmail)
	}

	body := map[string]any{
		"from":    from,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	}
	headers := map[string]string{"Authorization": "Bearer " + apiKey}

	result, err := p.api.postJSON(ctx, p.endpoint, headers, body, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("resend: %w", err)
	}

	return NewResponse(map[string]any{
		"messageId": GetConfigString(result, "id"),
		"success":   true,
	}), nil
}
