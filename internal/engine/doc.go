// Package engine содержит движок выполнения workflow.
//
// Включает:
//   - graph.go    — индекс графа (узлы, рёбра, порты)
//   - validate.go — структурная валидация графа перед запуском
//   - expr.go     — разрешение выражений ({{$json.x}}, {{$node["A"].json.y}})
//   - run.go      — состояние одного запуска (очередь, статусы, рёбра)
//   - engine.go   — координатор выполнения
//
// Engine отвечает за порядок выполнения узлов, распространение
// пропусков по неактивированным ветвям и изоляцию сбоев.
package engine
