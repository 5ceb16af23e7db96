package capability

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр провайдеров по виду узла.
//
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными провайдерами.
//
// store — хранилище для узлов memory.
func DefaultRegistry(store Store) *Registry {
	r := NewRegistry()

	r.Register(NewWebhookTrigger())
	r.Register(NewFormTrigger())
	r.Register(NewConditionProvider())
	r.Register(NewMemoryProvider(store))
	r.Register(NewResponseProvider())
	r.Register(NewTelegramSendProvider())
	r.Register(NewTelegramWaitProvider())
	r.Register(NewResendEmailProvider())
	r.Register(NewGeminiProvider())
	r.Register(NewChatGPTProvider())
	r.Register(NewAnthropicProvider())

	return r
}

// Register регистрирует провайдер.
// Существующий провайдер того же вида перезаписывается.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Kind()] = p
}

// Get возвращает провайдер по виду узла.
// Возвращает ErrProviderNotFound, если провайдер не зарегистрирован.
func (r *Registry) Get(kind string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, kind)
	}

	return p, nil
}

// Has проверяет, зарегистрирован ли провайдер.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.providers[kind]
	return exists
}

// Kinds возвращает отсортированный список видов с провайдерами.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Count возвращает количество зарегистрированных провайдеров.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
