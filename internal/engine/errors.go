package engine

import "errors"

// Ошибки структурной валидации графа.
var (
	// ErrEmptyWorkflow — workflow не содержит узлов.
	ErrEmptyWorkflow = errors.New("workflow has no nodes")

	// ErrNoTrigger — workflow не содержит триггерного узла.
	ErrNoTrigger = errors.New("workflow has no trigger node")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownKind — вид узла не зарегистрирован в каталоге.
	ErrUnknownKind = errors.New("unknown node kind")

	// ErrDanglingEdge — ребро ссылается на несуществующий узел.
	ErrDanglingEdge = errors.New("edge references unknown node")

	// ErrUnknownPort — ребро выходит из необъявленного порта.
	ErrUnknownPort = errors.New("edge uses undeclared source port")

	// ErrTriggerInbound — триггерный узел имеет входящие рёбра.
	ErrTriggerInbound = errors.New("trigger node has inbound edges")

	// ErrMissingConfig — отсутствует обязательное конфигурационное поле.
	ErrMissingConfig = errors.New("missing required config field")

	// ErrMissingCredential — отсутствует ссылка на обязательный credential.
	ErrMissingCredential = errors.New("missing credential reference")

	// ErrCyclicGraph — цикл, достижимый из триггера.
	ErrCyclicGraph = errors.New("workflow graph contains a cycle reachable from a trigger")
)

// Ошибки выполнения.
var (
	// ErrRunNotActive — запуск не выполняется этим процессом.
	ErrRunNotActive = errors.New("run is not active")

	// ErrRunTimeout — запуск превысил лимит времени.
	ErrRunTimeout = errors.New("run exceeded wall-clock timeout")

	// ErrUnresolvedReference — выражение ссылается на недоступное значение.
	ErrUnresolvedReference = errors.New("unresolved expression reference")
)

// StructuralError — ошибка валидации графа с контекстом.
type StructuralError struct {
	NodeID  string // ID узла, где обнаружена ошибка
	EdgeID  string // ID ребра, где обнаружена ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *StructuralError) Error() string {
	switch {
	case e.NodeID != "":
		return "node " + e.NodeID + ": " + e.Message
	case e.EdgeID != "":
		return "edge " + e.EdgeID + ": " + e.Message
	default:
		return e.Message
	}
}

// Unwrap возвращает базовую ошибку.
func (e *StructuralError) Unwrap() error {
	return e.Err
}

// NewStructuralError создаёт новую ошибку валидации.
func NewStructuralError(nodeID, edgeID, field, message string, err error) *StructuralError {
	return &StructuralError{
		NodeID:  nodeID,
		EdgeID:  edgeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ResolutionError — ошибка разрешения выражения.
//
// Содержит исходный placeholder, чтобы ошибка узла называла
// конкретную неразрешимую ссылку.
type ResolutionError struct {
	NodeID      string // ID узла, в чьей конфигурации встретилось выражение
	Placeholder string // исходный текст выражения, включая скобки
	Message     string // описание ошибки
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	return "cannot resolve " + e.Placeholder + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ResolutionError) Unwrap() error {
	return ErrUnresolvedReference
}
