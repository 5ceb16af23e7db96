package engine

import (
	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/domain"
)

// Graph — индекс графа workflow.
//
// Строится один раз перед запуском и далее не меняется.
// Порядок в Nodes и рёбрах повторяет порядок объявления в workflow,
// что делает обход графа детерминированным.
type Graph struct {
	// Workflow — исходный документ.
	Workflow *domain.Workflow

	// Nodes — узлы по ID, в порядке объявления.
	Nodes map[string]*domain.NodeInstance

	// Order — ID узлов в порядке объявления.
	Order []string

	// Incoming — входящие рёбра по ID целевого узла.
	Incoming map[string][]*domain.Edge

	// Outgoing — исходящие рёбра по ID исходного узла.
	Outgoing map[string][]*domain.Edge

	// Triggers — ID триггерных узлов в порядке объявления.
	Triggers []string
}

// BuildGraph строит индекс графа.
//
// Предполагает, что граф уже прошёл валидацию: узлы с неизвестным
// видом не попадают в Triggers, но в индекс включаются.
func BuildGraph(wf *domain.Workflow, cat *catalog.Registry) *Graph {
	g := &Graph{
		Workflow: wf,
		Nodes:    make(map[string]*domain.NodeInstance, len(wf.Nodes)),
		Order:    make([]string, 0, len(wf.Nodes)),
		Incoming: make(map[string][]*domain.Edge),
		Outgoing: make(map[string][]*domain.Edge),
	}

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		g.Nodes[node.ID] = node
		g.Order = append(g.Order, node.ID)

		if tmpl, err := cat.Get(node.Kind); err == nil && tmpl.IsTrigger {
			g.Triggers = append(g.Triggers, node.ID)
		}
	}

	for i := range wf.Edges {
		edge := &wf.Edges[i]
		g.Outgoing[edge.SourceNodeID] = append(g.Outgoing[edge.SourceNodeID], edge)
		g.Incoming[edge.TargetNodeID] = append(g.Incoming[edge.TargetNodeID], edge)
	}

	return g
}

// Node возвращает узел по ID.
func (g *Graph) Node(id string) *domain.NodeInstance {
	return g.Nodes[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Order)
}

// IsTrigger проверяет, является ли узел триггером.
func (g *Graph) IsTrigger(id string) bool {
	for _, t := range g.Triggers {
		if t == id {
			return true
		}
	}
	return false
}

// Reachable возвращает множество узлов, достижимых из триггеров.
//
// Узлы вне этого множества помечаются пропущенными при запуске.
func (g *Graph) Reachable() map[string]bool {
	reachable := make(map[string]bool)
	queue := make([]string, len(g.Triggers))
	copy(queue, g.Triggers)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reachable[id] {
			continue
		}
		reachable[id] = true

		for _, edge := range g.Outgoing[id] {
			if !reachable[edge.TargetNodeID] {
				queue = append(queue, edge.TargetNodeID)
			}
		}
	}

	return reachable
}
