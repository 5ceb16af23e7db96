package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/domain"
)

// Validate выполняет структурную валидацию графа workflow.
//
// Возвращает полный список найденных проблем, а не только первую:
// клиенту API нужны все ошибки сразу.
//
// Проверки:
//   - граф не пуст и содержит хотя бы один триггерный узел
//   - ID узлов уникальны
//   - вид каждого узла зарегистрирован в каталоге
//   - рёбра ссылаются на существующие узлы и объявленные порты
//   - триггерные узлы не имеют входящих рёбер
//   - обязательные конфигурационные поля без default заполнены
//   - обязательные credential-слоты заполнены ссылками
//   - достижимая из триггеров часть графа ациклична
func Validate(wf *domain.Workflow, cat *catalog.Registry) []*StructuralError {
	var errs []*StructuralError

	if len(wf.Nodes) == 0 {
		errs = append(errs, NewStructuralError("", "", "nodes",
			"workflow has no nodes", ErrEmptyWorkflow))
		return errs
	}

	seen := make(map[string]bool, len(wf.Nodes))
	hasTrigger := false

	for i := range wf.Nodes {
		node := &wf.Nodes[i]

		if seen[node.ID] {
			errs = append(errs, NewStructuralError(node.ID, "", "id",
				fmt.Sprintf("duplicate node ID %q", node.ID), ErrDuplicateNodeID))
			continue
		}
		seen[node.ID] = true

		tmpl, err := cat.Get(node.Kind)
		if err != nil {
			errs = append(errs, NewStructuralError(node.ID, "", "kind",
				fmt.Sprintf("unknown node kind %q", node.Kind), ErrUnknownKind))
			continue
		}
		if tmpl.IsTrigger {
			hasTrigger = true
		}

		errs = append(errs, validateConfig(node, tmpl)...)
		errs = append(errs, validateCredentials(node, tmpl)...)
	}

	if !hasTrigger {
		errs = append(errs, NewStructuralError("", "", "nodes",
			"workflow has no trigger node", ErrNoTrigger))
	}

	errs = append(errs, validateEdges(wf, cat)...)

	if cycle := findCycle(wf, cat); len(cycle) > 0 {
		errs = append(errs, NewStructuralError("", "", "edges",
			fmt.Sprintf("cycle reachable from trigger through nodes: %s", strings.Join(cycle, ", ")),
			ErrCyclicGraph))
	}

	return errs
}

// validateConfig проверяет обязательные конфигурационные поля узла.
//
// Поле со значением по умолчанию можно не заполнять: default
// подставляется при разрешении конфигурации.
func validateConfig(node *domain.NodeInstance, tmpl *catalog.Template) []*StructuralError {
	var errs []*StructuralError

	for _, f := range tmpl.ConfigFields {
		if !f.Required || f.Default != nil {
			continue
		}
		v, ok := node.Config[f.Key]
		if !ok || v == nil || v == "" {
			errs = append(errs, NewStructuralError(node.ID, "", f.Key,
				fmt.Sprintf("missing required config field %q", f.Key), ErrMissingConfig))
		}
	}

	return errs
}

// validateCredentials проверяет заполненность credential-слотов.
func validateCredentials(node *domain.NodeInstance, tmpl *catalog.Template) []*StructuralError {
	var errs []*StructuralError

	for _, slot := range tmpl.RequiredCredentials {
		if node.CredentialRefs[slot] == "" {
			errs = append(errs, NewStructuralError(node.ID, "", slot,
				fmt.Sprintf("missing credential reference for slot %q", slot),
				ErrMissingCredential))
		}
	}

	return errs
}

// validateEdges проверяет концы и порты рёбер.
func validateEdges(wf *domain.Workflow, cat *catalog.Registry) []*StructuralError {
	var errs []*StructuralError

	nodes := make(map[string]*domain.NodeInstance, len(wf.Nodes))
	for i := range wf.Nodes {
		nodes[wf.Nodes[i].ID] = &wf.Nodes[i]
	}

	inbound := make(map[string]int)

	for i := range wf.Edges {
		edge := &wf.Edges[i]

		src, srcOK := nodes[edge.SourceNodeID]
		if !srcOK {
			errs = append(errs, NewStructuralError("", edge.ID, "source",
				fmt.Sprintf("source node %q does not exist", edge.SourceNodeID),
				ErrDanglingEdge))
		}
		if _, ok := nodes[edge.TargetNodeID]; !ok {
			errs = append(errs, NewStructuralError("", edge.ID, "target",
				fmt.Sprintf("target node %q does not exist", edge.TargetNodeID),
				ErrDanglingEdge))
		} else {
			inbound[edge.TargetNodeID]++
		}

		if srcOK {
			if tmpl, err := cat.Get(src.Kind); err == nil && !tmpl.HasPort(edge.SourcePort) {
				errs = append(errs, NewStructuralError("", edge.ID, "source_port",
					fmt.Sprintf("node kind %q has no port %q", src.Kind, edge.SourcePort),
					ErrUnknownPort))
			}
		}
	}

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		tmpl, err := cat.Get(node.Kind)
		if err != nil {
			continue
		}
		if tmpl.IsTrigger && inbound[node.ID] > 0 {
			errs = append(errs, NewStructuralError(node.ID, "", "edges",
				"trigger node cannot have inbound edges", ErrTriggerInbound))
		}
	}

	return errs
}

// findCycle ищет цикл алгоритмом Кана в части графа, достижимой
// из триггеров.
//
// Остров с циклом, до которого не дотягивается ни один триггер,
// валидацию не проваливает: его узлы при запуске пропускаются как
// недостижимые. Возвращает отсортированный список ID узлов,
// оставшихся после послойного снятия узлов без входящих рёбер.
// Пустой список означает отсутствие цикла.
func findCycle(wf *domain.Workflow, cat *catalog.Registry) []string {
	reachable := BuildGraph(wf, cat).Reachable()

	inDegree := make(map[string]int, len(reachable))
	outgoing := make(map[string][]string)

	for i := range wf.Nodes {
		if reachable[wf.Nodes[i].ID] {
			inDegree[wf.Nodes[i].ID] = 0
		}
	}
	for i := range wf.Edges {
		edge := &wf.Edges[i]
		if _, ok := inDegree[edge.SourceNodeID]; !ok {
			continue
		}
		if _, ok := inDegree[edge.TargetNodeID]; !ok {
			continue
		}
		outgoing[edge.SourceNodeID] = append(outgoing[edge.SourceNodeID], edge.TargetNodeID)
		inDegree[edge.TargetNodeID]++
	}

	queue := make([]string, 0, len(inDegree))
	for i := range wf.Nodes {
		id := wf.Nodes[i].ID
		if reachable[id] && inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++

		for _, next := range outgoing[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed == len(inDegree) {
		return nil
	}

	remaining := make([]string, 0)
	for id, deg := range inDegree {
		if deg > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Strings(remaining)
	return remaining
}
