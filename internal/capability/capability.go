// Package capability содержит реализации видов узлов.
//
// Каждый вид узла из каталога (condition, memory, telegram, llm и т.д.)
// реализован как Provider. Движок разрешает выражения в конфигурации
// узла и передаёт готовую конфигурацию провайдеру.
package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
)

// Ошибки провайдеров.
var (
	// ErrProviderNotFound — вид узла не имеет зарегистрированного провайдера.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrInvalidConfig — невалидная конфигурация узла.
	ErrInvalidConfig = errors.New("invalid node config")

	// ErrMissingCredential — провайдеру не передан требуемый credential.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvokeCancelled — выполнение узла отменено.
	ErrInvokeCancelled = errors.New("node invocation cancelled")

	// ErrInvokeTimeout — узел превысил таймаут.
	ErrInvokeTimeout = errors.New("node invocation timeout")
)

// Provider — интерфейс реализации вида узла.
type Provider interface {
	// Kind возвращает вид узла, который обслуживает провайдер.
	Kind() string

	// Invoke выполняет узел и возвращает результат.
	// Провайдер должен проверять ctx.Done() для graceful shutdown.
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения узла.
type Request struct {
	// RunID — идентификатор запуска.
	RunID uuid.UUID

	// Node — экземпляр узла из графа.
	Node *domain.NodeInstance

	// Config — конфигурация узла с уже разрешёнными выражениями.
	Config map[string]any

	// Credentials — разрешённые секреты по именам слотов.
	// Значения не должны попадать в выход узла и в логи.
	Credentials map[string]string

	// Trigger — trigger payload запуска.
	Trigger map[string]any

	// Timeout — таймаут выполнения узла.
	// Если 0, используется таймаут по умолчанию.
	Timeout time.Duration
}

// Response — результат выполнения узла.
type Response struct {
	// Outputs — выходной объект узла.
	// Доступен следующим узлам через {{$node["..."].json.field}}.
	Outputs map[string]any

	// ActivatedPorts — активированные выходные порты.
	// Пустой список означает единственный порт "default".
	ActivatedPorts []string
}

// NewResponse создаёт Response с выходом по умолчанию на порт "default".
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{Outputs: outputs}
}

// Credential возвращает секрет по имени слота.
// Возвращает ErrMissingCredential, если слот не заполнен.
func (r *Request) Credential(slot string) (string, error) {
	if v, ok := r.Credentials[slot]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: slot %q", ErrMissingCredential, slot)
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigFloat извлекает дробное значение из конфига.
func GetConfigFloat(config map[string]any, key string) float64 {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case float64:
			return n
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
