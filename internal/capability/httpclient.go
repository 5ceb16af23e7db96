package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// defaultInvokeTimeout — таймаут внешнего вызова по умолчанию.
	defaultInvokeTimeout = 30 * time.Second

	// maxResponseBody — лимит на размер тела ответа внешнего API.
	maxResponseBody = 10 * 1024 * 1024 // 10 MB
)

// apiClient — общий HTTP-клиент для провайдеров внешних API.
type apiClient struct {
	client *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		client: &http.Client{
			Timeout: defaultInvokeTimeout,
		},
	}
}

// postJSON выполняет POST с JSON-телом и парсит JSON-ответ.
//
// Не-2xx статус возвращается как APIError с телом ответа.
func (c *apiClient) postJSON(ctx context.Context, url string, headers map[string]string, body any, timeout time.Duration) (map[string]any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

// getJSON выполняет GET и парсит JSON-ответ.
func (c *apiClient) getJSON(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) (map[string]any, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvokeCancelled, req.Context().Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
	}

	var parsed map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse response body: %w", err)
		}
	}

	return parsed, nil
}

// APIError — ошибка внешнего API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Status)
}
