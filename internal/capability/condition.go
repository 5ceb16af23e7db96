package capability

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
)

// KindCondition — вид условного узла.
const KindCondition = "if-condition"

// Операторы сравнения.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
)

// ConditionProvider — условный узел.
//
// Сравнивает два значения и активирует порт "true" либо "false".
// Никогда не активирует оба порта одновременно.
//
// Конфигурация:
//
//	{
//	    "value1": "{{$json.status}}",
//	    "operator": "equals",
//	    "value2": "approved"
//	}
type ConditionProvider struct{}

// NewConditionProvider создаёт новый ConditionProvider.
func NewConditionProvider() *ConditionProvider {
	return &ConditionProvider{}
}

// Kind возвращает вид узла.
func (p *ConditionProvider) Kind() string {
	return KindCondition
}

// Invoke вычисляет условие.
func (p *ConditionProvider) Invoke(_ context.Context, req *Request) (*Response, error) {
	operator := GetConfigString(req.Config, "operator")
	value1, ok1 := req.Config["value1"]
	value2, ok2 := req.Config["value2"]
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: %s: value1 and value2 are required",
			ErrInvalidConfig, KindCondition)
	}

	result, err := evaluate(operator, value1, value2)
	if err != nil {
		return nil, err
	}

	port := domain.PortFalse
	if result {
		port = domain.PortTrue
	}

	return &Response{
		Outputs:        map[string]any{"result": result},
		ActivatedPorts: []string{port},
	}, nil
}

// evaluate сравнивает два значения выбранным оператором.
//
// Числовые операторы приводят обе стороны к числу; если хотя бы одна
// сторона не число, узел завершается ошибкой, а не ложью.
func evaluate(operator string, value1, value2 any) (bool, error) {
	switch operator {
	case OpEquals:
		return compareEqual(value1, value2), nil
	case OpNotEquals:
		return !compareEqual(value1, value2), nil
	case OpGreaterThan, OpLessThan:
		n1, err := toNumber(value1)
		if err != nil {
			return false, fmt.Errorf("%w: %s: value1: %v", ErrInvalidConfig, KindCondition, err)
		}
		n2, err := toNumber(value2)
		if err != nil {
			return false, fmt.Errorf("%w: %s: value2: %v", ErrInvalidConfig, KindCondition, err)
		}
		if operator == OpGreaterThan {
			return n1 > n2, nil
		}
		return n1 < n2, nil
	case OpContains:
		return strings.Contains(toComparableString(value1), toComparableString(value2)), nil
	default:
		return false, fmt.Errorf("%w: %s: unknown operator %q",
			ErrInvalidConfig, KindCondition, operator)
	}
}

// compareEqual сравнивает значения.
//
// Числа сравниваются как числа независимо от исходного типа,
// остальное сравнивается строковым представлением.
func compareEqual(value1, value2 any) bool {
	n1, err1 := toNumber(value1)
	n2, err2 := toNumber(value2)
	if err1 == nil && err2 == nil {
		return n1 == n2
	}
	return toComparableString(value1) == toComparableString(value2)
}

// toNumber приводит значение к float64.
func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}

// toComparableString приводит значение к строке для сравнения.
func toComparableString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
