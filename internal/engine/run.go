package engine

import (
	"github.com/shaiso/Flowline/internal/domain"
)

// edgeState — состояние ребра во время запуска.
type edgeState int

const (
	// edgePending — источник ребра ещё не завершён.
	edgePending edgeState = iota

	// edgeActive — источник завершился и активировал порт ребра.
	edgeActive

	// edgeDead — ребро не сработает: порт не активирован либо
	// источник завершился сбоем или пропуском.
	edgeDead
)

// runState — состояние одного запуска.
//
// Не потокобезопасен: вся мутация идёт из координатора запуска.
type runState struct {
	graph *Graph

	// status — текущий статус каждого узла.
	status map[string]domain.NodeStatus

	// skipReason — причина пропуска для узлов в статусе SKIPPED.
	skipReason map[string]string

	// edges — состояние каждого ребра по ID.
	edges map[string]edgeState

	// queue — FIFO-очередь узлов, готовых к выполнению.
	queue []string

	// queued — узлы, уже поставленные в очередь или отправленные
	// на выполнение, чтобы не ставить дважды.
	queued map[string]bool

	// failed — хотя бы один узел завершился сбоем.
	failed bool

	// firstError — ошибка первого сбившегося узла.
	firstError string
}

// newRunState создаёт состояние запуска: все узлы PENDING,
// все рёбра pending, очередь пуста.
func newRunState(g *Graph) *runState {
	st := &runState{
		graph:      g,
		status:     make(map[string]domain.NodeStatus, g.Size()),
		skipReason: make(map[string]string),
		edges:      make(map[string]edgeState, len(g.Workflow.Edges)),
		queued:     make(map[string]bool),
	}
	for _, id := range g.Order {
		st.status[id] = domain.NodeStatusPending
	}
	for i := range g.Workflow.Edges {
		st.edges[g.Workflow.Edges[i].ID] = edgePending
	}
	return st
}

// enqueue ставит узел в очередь, если он ещё не ставился.
func (st *runState) enqueue(id string) {
	if st.queued[id] {
		return
	}
	st.queued[id] = true
	st.queue = append(st.queue, id)
}

// dequeue извлекает следующий узел из очереди.
func (st *runState) dequeue() (string, bool) {
	if len(st.queue) == 0 {
		return "", false
	}
	id := st.queue[0]
	st.queue = st.queue[1:]
	return id, true
}

// markCompleted фиксирует успех узла и решает судьбу исходящих рёбер.
//
// Рёбра активированных портов становятся active, остальные dead.
func (st *runState) markCompleted(id string, activatedPorts []string) {
	st.status[id] = domain.NodeStatusCompleted

	active := make(map[string]bool, len(activatedPorts))
	for _, p := range activatedPorts {
		active[p] = true
	}

	for _, edge := range st.graph.Outgoing[id] {
		if active[edge.SourcePort] {
			st.edges[edge.ID] = edgeActive
		} else {
			st.edges[edge.ID] = edgeDead
		}
	}
}

// markFailed фиксирует сбой узла: все исходящие рёбра dead.
func (st *runState) markFailed(id, errMsg string) {
	st.status[id] = domain.NodeStatusFailed
	if !st.failed {
		st.failed = true
		st.firstError = errMsg
	}
	for _, edge := range st.graph.Outgoing[id] {
		st.edges[edge.ID] = edgeDead
	}
}

// markSkipped фиксирует пропуск узла: все исходящие рёбра dead.
func (st *runState) markSkipped(id, reason string) {
	st.status[id] = domain.NodeStatusSkipped
	st.skipReason[id] = reason
	for _, edge := range st.graph.Outgoing[id] {
		st.edges[edge.ID] = edgeDead
	}
}

// advance переводит целевые узлы завершившегося узла в очередь
// или в пропуск и каскадно распространяет пропуски.
//
// Возвращает список узлов, пропущенных на этом шаге, в порядке
// обнаружения. Постановка в очередь идёт в порядке рёбер,
// что делает обход детерминированным.
func (st *runState) advance(completedID string) []string {
	var skipped []string

	worklist := make([]string, 0, len(st.graph.Outgoing[completedID]))
	for _, edge := range st.graph.Outgoing[completedID] {
		worklist = append(worklist, edge.TargetNodeID)
	}

	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]

		if st.status[id] != domain.NodeStatusPending || st.queued[id] {
			continue
		}

		ready, dead, reason := st.inspect(id)
		switch {
		case ready:
			st.enqueue(id)
		case dead:
			st.markSkipped(id, reason)
			skipped = append(skipped, id)
			for _, edge := range st.graph.Outgoing[id] {
				worklist = append(worklist, edge.TargetNodeID)
			}
		}
	}

	return skipped
}

// inspect решает судьбу узла по состоянию входящих рёбер.
//
// Узел готов, когда ни одно входящее ребро не pending и хотя бы
// одно active. Узел мёртв, когда все входящие рёбра dead; причина
// пропуска наследуется от худшего источника: сбой выше по графу
// приоритетнее неактивированной ветви.
func (st *runState) inspect(id string) (ready, dead bool, reason string) {
	incoming := st.graph.Incoming[id]
	if len(incoming) == 0 {
		return false, false, ""
	}

	anyActive := false
	reason = domain.SkipReasonBranch

	for _, edge := range incoming {
		switch st.edges[edge.ID] {
		case edgePending:
			return false, false, ""
		case edgeActive:
			anyActive = true
		case edgeDead:
			switch st.status[edge.SourceNodeID] {
			case domain.NodeStatusFailed:
				reason = domain.SkipReasonUpstreamFailed
			case domain.NodeStatusSkipped:
				if st.skipReason[edge.SourceNodeID] == domain.SkipReasonUpstreamFailed {
					reason = domain.SkipReasonUpstreamFailed
				}
			}
		}
	}

	if anyActive {
		return true, false, ""
	}
	return false, true, reason
}

// pendingNodes возвращает узлы, оставшиеся в статусе PENDING
// и не стоящие в очереди, в порядке объявления.
func (st *runState) pendingNodes() []string {
	var out []string
	for _, id := range st.graph.Order {
		if st.status[id] == domain.NodeStatusPending && !st.queued[id] {
			out = append(out, id)
		}
	}
	return out
}

// drainQueue забирает из очереди все узлы, ещё не отправленные
// на выполнение.
func (st *runState) drainQueue() []string {
	out := st.queue
	st.queue = nil
	return out
}
