// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (хранилища, publisher, каталог, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - workflow_handler.go   — обработчики для /workflows
//   - run_handler.go        — обработчики для /runs и вебхуков
//   - credential_handler.go — обработчики для /credentials
//   - schedule_handler.go   — обработчики для /schedules
//   - catalog_handler.go    — обработчик каталога узлов
//
// API предоставляет REST endpoints для управления workflows, executions,
// credentials и schedules, а также публичный webhook endpoint для триггеров.
package api
