// Package catalog содержит каталог типов узлов workflow.
//
// Каталог описывает каждый поддерживаемый вид узла: его конфигурационные
// поля, требуемые credentials, выходные порты и выходные поля. Валидация
// графа и движок выполнения опираются на каталог как на единственный
// источник правды о видах узлов.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrKindNotFound — вид узла не зарегистрирован в каталоге.
var ErrKindNotFound = errors.New("node kind not found")

// FieldType — тип конфигурационного поля узла.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldText    FieldType = "textarea"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldSelect  FieldType = "select"
)

// ConfigField — описание одного конфигурационного поля узла.
type ConfigField struct {
	// Key — ключ поля в NodeInstance.Config.
	Key string `json:"key"`

	// Label — человекочитаемое имя поля.
	Label string `json:"label"`

	// Type — тип значения поля.
	Type FieldType `json:"type"`

	// Required — поле обязательно для заполнения.
	// Обязательное поле без Default должно присутствовать в Config,
	// иначе граф не проходит валидацию.
	Required bool `json:"required,omitempty"`

	// Options — допустимые значения для полей типа select.
	Options []string `json:"options,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`
}

// OutputField — описание одного поля выходного объекта узла.
type OutputField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Template — описание вида узла в каталоге.
type Template struct {
	// Kind — уникальный идентификатор вида узла ("webhook", "if-condition" и т.д.).
	Kind string `json:"kind"`

	// Label — имя вида по умолчанию.
	Label string `json:"label"`

	// Description — краткое описание назначения.
	Description string `json:"description"`

	// Category — группа в каталоге ("Core", "AI", "Flow" и т.д.).
	Category string `json:"category"`

	// IsTrigger — узел является точкой входа workflow.
	// Триггерные узлы не имеют входящих рёбер и получают trigger payload.
	IsTrigger bool `json:"is_trigger"`

	// Ports — имена выходных портов узла.
	// Большинство узлов имеют один порт "default";
	// условные узлы имеют порты "true" и "false".
	Ports []string `json:"ports"`

	// ConfigFields — схема конфигурации узла.
	ConfigFields []ConfigField `json:"config_fields"`

	// RequiredCredentials — имена credential-слотов,
	// которые должны быть заполнены в NodeInstance.CredentialRefs.
	RequiredCredentials []string `json:"required_credentials,omitempty"`

	// OutputFields — поля выходного объекта узла.
	OutputFields []OutputField `json:"output_fields,omitempty"`
}

// HasPort проверяет, объявлен ли порт у вида узла.
func (t *Template) HasPort(port string) bool {
	for _, p := range t.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// Field возвращает описание конфигурационного поля по ключу.
func (t *Template) Field(key string) (ConfigField, bool) {
	for _, f := range t.ConfigFields {
		if f.Key == key {
			return f, true
		}
	}
	return ConfigField{}, false
}

// DefaultConfig собирает конфигурацию по умолчанию из схемы.
func (t *Template) DefaultConfig() map[string]any {
	cfg := make(map[string]any)
	for _, f := range t.ConfigFields {
		if f.Default != nil {
			cfg[f.Key] = f.Default
		}
	}
	return cfg
}

// Registry — реестр видов узлов.
//
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*Template),
	}
}

// Register регистрирует вид узла.
// Существующий вид с тем же Kind перезаписывается.
func (r *Registry) Register(t *Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Kind] = t
}

// Get возвращает вид узла по идентификатору.
// Возвращает ErrKindNotFound, если вид не зарегистрирован.
func (r *Registry) Get(kind string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.templates[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrKindNotFound, kind)
	}

	return t, nil
}

// Has проверяет, зарегистрирован ли вид узла.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.templates[kind]
	return exists
}

// Kinds возвращает отсортированный список зарегистрированных видов.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.templates))
	for k := range r.templates {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// List возвращает все виды узлов, отсортированные по Kind.
func (r *Registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Kind < list[j].Kind })
	return list
}

// Count возвращает количество зарегистрированных видов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
