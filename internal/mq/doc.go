// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — чтение и декодирование событий runs.*
//
// Типы сообщений:
//   - run.requested — execution создан и ожидает выполнения
//   - run.cancel    — запрошена отмена execution
//
// Exchanges:
//   - flowline.runs — события executions
//   - flowline.dlq  — dead letter queue
package mq
