package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// KindMemory — вид узла долговременной памяти.
const KindMemory = "memory"

// Действия узла memory.
const (
	memoryActionStore    = "store"
	memoryActionRetrieve = "retrieve"
	memoryActionDelete   = "delete"
)

// ErrKeyNotFound — ключ отсутствует в хранилище.
var ErrKeyNotFound = errors.New("memory key not found")

// Store — key-value хранилище для узлов memory.
//
// Значения переживают завершение запуска: следующий запуск того же
// workflow видит то, что записал предыдущий.
type Store interface {
	// Set сохраняет значение по ключу.
	Set(ctx context.Context, key string, value string) error

	// Get возвращает значение по ключу.
	// Возвращает ErrKeyNotFound, если ключ отсутствует.
	Get(ctx context.Context, key string) (string, error)

	// Delete удаляет ключ.
	// Удаление отсутствующего ключа не является ошибкой.
	Delete(ctx context.Context, key string) error
}

// MemoryProvider — узел долговременной памяти.
//
// Конфигурация:
//
//	{
//	    "action": "store",        // store | retrieve | delete
//	    "key": "user_preferences",
//	    "value": "{{$json.data}}" // только для store
//	}
type MemoryProvider struct {
	store Store
}

// NewMemoryProvider создаёт новый MemoryProvider.
func NewMemoryProvider(store Store) *MemoryProvider {
	return &MemoryProvider{store: store}
}

// Kind возвращает вид узла.
func (p *MemoryProvider) Kind() string {
	return KindMemory
}

// Invoke выполняет действие над хранилищем.
func (p *MemoryProvider) Invoke(ctx context.Context, req *Request) (*Response, error) {
	action := GetConfigString(req.Config, "action")
	key := GetConfigString(req.Config, "key")
	if key == "" {
		return nil, fmt.Errorf("%w: %s: key is required", ErrInvalidConfig, KindMemory)
	}

	switch action {
	case memoryActionStore:
		value := GetConfigString(req.Config, "value")
		if err := p.store.Set(ctx, key, value); err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		return NewResponse(map[string]any{
			"value":   value,
			"success": true,
		}), nil

	case memoryActionRetrieve:
		value, err := p.store.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			return NewResponse(map[string]any{
				"value":   "",
				"success": false,
			}), nil
		}
		if err != nil {
			return nil, fmt.Errorf("memory retrieve: %w", err)
		}
		return NewResponse(map[string]any{
			"value":   value,
			"success": true,
		}), nil

	case memoryActionDelete:
		if err := p.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("memory delete: %w", err)
		}
		return NewResponse(map[string]any{
			"value":   "",
			"success": true,
		}), nil

	default:
		return nil, fmt.Errorf("%w: %s: unknown action %q", ErrInvalidConfig, KindMemory, action)
	}
}

// InMemoryStore — Store в памяти процесса.
//
// Используется в тестах и в одиночном режиме без базы данных.
// Потокобезопасен.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryStore создаёт пустое хранилище.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		values: make(map[string]string),
	}
}

// Set сохраняет значение по ключу.
func (s *InMemoryStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Get возвращает значение по ключу.
func (s *InMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return value, nil
}

// Delete удаляет ключ.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
