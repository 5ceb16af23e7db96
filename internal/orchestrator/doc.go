// Package orchestrator управляет жизненным циклом executions.
//
// Orchestrator отвечает за:
//   - Получение событий run.requested и run.cancel из RabbitMQ
//   - Периодическую проверку pending executions в БД (polling fallback)
//   - Загрузку workflow и запуск движка для каждого execution
//   - Ограничение числа одновременных executions
//   - Передачу запросов отмены работающему движку
//
// Само выполнение графа (очередь готовности, пропуски, журнал)
// делает пакет engine. Orchestrator — это обвязка сервиса вокруг него.
package orchestrator
