package domain

import (
	"time"

	"github.com/google/uuid"
)

// Порты узлов.
//
// Порт — именованный выход узла. У обычных узлов один порт "default",
// у ветвящихся (if-condition) — "true" и "false", из которых за одно
// выполнение активируется ровно один.
const (
	PortDefault = "default"
	PortTrue    = "true"
	PortFalse   = "false"
)

// Workflow — определение рабочего процесса: граф узлов и рёбер.
//
// Workflow редактируется авторской поверхностью (визуальным редактором)
// и передаётся движку как неизменяемый снимок. Движок никогда не мутирует
// Workflow; правки применяются только к снимку следующего запуска.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — имя workflow.
	Name string `json:"name"`

	// Description — описание назначения.
	Description string `json:"description,omitempty"`

	// Version — контентная версия снимка графа.
	// Меняется при каждом сохранении; execution запоминает, какую версию выполнял.
	Version string `json:"version"`

	// IsActive — флаг активности. Неактивные workflows не принимают новые запуски.
	IsActive bool `json:"is_active"`

	// Tags — произвольные метки для фильтрации.
	Tags []string `json:"tags,omitempty"`

	// Nodes — узлы графа.
	Nodes []NodeInstance `json:"nodes"`

	// Edges — рёбра графа.
	Edges []Edge `json:"edges"`

	// CreatedAt — время создания workflow.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего сохранения снимка.
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeInstance — экземпляр узла в графе workflow.
type NodeInstance struct {
	// ID — уникальный идентификатор узла в рамках workflow (например, "webhook-1").
	ID string `json:"id"`

	// Kind — тип узла из каталога (webhook, if-condition, telegram-send, ...).
	Kind string `json:"kind"`

	// Label — человекочитаемое имя узла. Используется в выражениях:
	// {{$node["Webhook"].json.body}}.
	Label string `json:"label,omitempty"`

	// Config — конфигурация узла. Значения-строки могут содержать
	// плейсхолдеры {{...}}, разрешаемые движком перед вызовом.
	Config map[string]any `json:"config,omitempty"`

	// CredentialRefs — ссылки на credentials: ключ из каталога → ref в хранилище.
	// Движок разрешает ref в секрет через CredentialResolver и никогда
	// не записывает разрешённое значение в логи или ledger.
	CredentialRefs map[string]string `json:"credential_refs,omitempty"`
}

// Edge — направленное ребро графа: выходной порт одного узла → вход другого.
type Edge struct {
	// ID — уникальный идентификатор ребра.
	ID string `json:"id"`

	// SourceNodeID — узел-источник.
	SourceNodeID string `json:"source_node_id"`

	// SourcePort — порт источника. "default" для обычных узлов,
	// "true"/"false" для ветвящихся.
	SourcePort string `json:"source_port"`

	// TargetNodeID — узел-приёмник.
	TargetNodeID string `json:"target_node_id"`
}

// NodeByID возвращает узел по ID или nil.
func (w *Workflow) NodeByID(id string) *NodeInstance {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// Touch обновляет контентную версию и время изменения.
// Вызывается при каждом сохранении снимка графа.
func (w *Workflow) Touch() {
	w.Version = uuid.New().String()
	w.UpdatedAt = time.Now()
}
