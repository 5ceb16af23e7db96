package capability

import "context"

// StaticProvider — провайдер с заранее заданным результатом.
//
// Используется в тестах движка и API вместо провайдеров,
// обращающихся к внешним сервисам.
type StaticProvider struct {
	NodeKind string
	Outputs  map[string]any
	Ports    []string
	Err      error

	// Fn, если задана, вызывается вместо статического результата.
	Fn func(ctx context.Context, req *Request) (*Response, error)
}

// Kind возвращает вид узла.
func (p *StaticProvider) Kind() string {
	return p.NodeKind
}

// Invoke возвращает настроенный результат.
func (p *StaticProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if p.Fn != nil {
		return p.Fn(ctx, req)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return &Response{Outputs: p.Outputs, ActivatedPorts: p.Ports}, nil
}
