package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
)

// Синтаксис выражений в конфигурации узлов:
//
//	{{$json.path}}            — значение из trigger payload
//	{{$trigger.path}}         — синоним $json
//	{{$node["Label"].json.x}} — выход узла по метке (или по ID)
//	{{$node["Label"].output.x}} — то же самое, альтернативная форма
//
// Путь состоит из ключей объектов, разделённых точками.
var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	nodeRefRe     = regexp.MustCompile(`^\$node\[\s*(?:"([^"]*)"|'([^']*)')\s*\]\.(json|output)(?:\.(.+))?$`)
	triggerRefRe  = regexp.MustCompile(`^\$(json|trigger)(?:\.(.+))?$`)
)

// ExprContext — контекст разрешения выражений для одного запуска.
//
// Не потокобезопасен: все обращения идут из координатора запуска.
type ExprContext struct {
	trigger map[string]any
	outputs map[string]map[string]any // nodeID → output
	labels  map[string]string         // label → nodeID
}

// NewExprContext создаёт контекст для запуска.
//
// Метки узлов разрешаются в ID: при совпадении меток побеждает
// первый узел в порядке объявления.
func NewExprContext(wf *domain.Workflow, trigger map[string]any) *ExprContext {
	ctx := &ExprContext{
		trigger: trigger,
		outputs: make(map[string]map[string]any),
		labels:  make(map[string]string, len(wf.Nodes)),
	}
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if node.Label == "" {
			continue
		}
		if _, exists := ctx.labels[node.Label]; !exists {
			ctx.labels[node.Label] = node.ID
		}
	}
	return ctx
}

// SetOutput сохраняет выход завершённого узла.
func (c *ExprContext) SetOutput(nodeID string, output map[string]any) {
	c.outputs[nodeID] = output
}

// Output возвращает сохранённый выход узла.
func (c *ExprContext) Output(nodeID string) (map[string]any, bool) {
	out, ok := c.outputs[nodeID]
	return out, ok
}

// Resolve разрешает выражения в строке.
//
// Если вся строка состоит из одного выражения, возвращается значение
// с исходным типом (число остаётся числом, объект объектом). Иначе
// каждое выражение подставляется как строка.
func (c *ExprContext) Resolve(nodeID, s string) (any, error) {
	matches := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Единственное выражение на всю строку: тип значения сохраняется.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return c.resolveRef(nodeID, s, s[matches[0][2]:matches[0][3]])
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		val, err := c.resolveRef(nodeID, s[m[0]:m[1]], s[m[2]:m[3]])
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(val))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// ResolveConfig разрешает выражения во всех строковых значениях
// конфигурации, включая вложенные объекты и массивы.
func (c *ExprContext) ResolveConfig(nodeID string, cfg map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(cfg))
	for k, v := range cfg {
		rv, err := c.resolveValue(nodeID, v)
		if err != nil {
			return nil, err
		}
		resolved[k] = rv
	}
	return resolved, nil
}

func (c *ExprContext) resolveValue(nodeID string, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return c.Resolve(nodeID, val)
	case map[string]any:
		return c.ResolveConfig(nodeID, val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rv, err := c.resolveValue(nodeID, item)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveRef разрешает одну ссылку.
// placeholder — исходный текст вместе со скобками, для сообщений об ошибках.
func (c *ExprContext) resolveRef(nodeID, placeholder, ref string) (any, error) {
	if m := triggerRefRe.FindStringSubmatch(ref); m != nil {
		if c.trigger == nil {
			return nil, &ResolutionError{NodeID: nodeID, Placeholder: placeholder,
				Message: "run has no trigger payload"}
		}
		if m[2] == "" {
			return c.trigger, nil
		}
		val, err := lookupPath(c.trigger, m[2])
		if err != nil {
			return nil, &ResolutionError{NodeID: nodeID, Placeholder: placeholder,
				Message: err.Error()}
		}
		return val, nil
	}

	if m := nodeRefRe.FindStringSubmatch(ref); m != nil {
		label := m[1]
		if label == "" {
			label = m[2]
		}

		targetID, ok := c.labels[label]
		if !ok {
			// Метка не найдена: пробуем трактовать её как ID узла.
			if _, exists := c.outputs[label]; exists {
				targetID = label
			} else {
				return nil, &ResolutionError{NodeID: nodeID, Placeholder: placeholder,
					Message: fmt.Sprintf("node %q not found or has not produced output", label)}
			}
		}

		output, ok := c.outputs[targetID]
		if !ok {
			return nil, &ResolutionError{NodeID: nodeID, Placeholder: placeholder,
				Message: fmt.Sprintf("node %q has not produced output", label)}
		}
		if m[4] == "" {
			return output, nil
		}
		val, err := lookupPath(output, m[4])
		if err != nil {
			return nil, &ResolutionError{NodeID: nodeID, Placeholder: placeholder,
				Message: err.Error()}
		}
		return val, nil
	}

	return nil, &ResolutionError{NodeID: nodeID, Placeholder: placeholder,
		Message: "unsupported expression syntax"}
}

// lookupPath обходит вложенные объекты по пути "a.b.c".
func lookupPath(root map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = root

	for i, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q: %q is not an object",
				path, strings.Join(parts[:i], "."))
		}
		val, exists := obj[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q does not exist", path, part)
		}
		current = val
	}

	return current, nil
}

// stringify превращает значение в строку для подстановки в шаблон.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
