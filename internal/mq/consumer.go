package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RunEvent — событие жизненного цикла execution, прочитанное из
// очереди. Для run.requested заполнены RunID и WorkflowID, для
// run.cancel — только RunID.
type RunEvent struct {
	MessageID  string
	Type       MessageType
	RunID      uuid.UUID
	WorkflowID uuid.UUID
}

// EventHandler обрабатывает одно событие.
// Ошибка возвращает сообщение в очередь; повторный сбой уводит
// его в DLQ.
type EventHandler func(ctx context.Context, ev RunEvent) error

// Consumer читает события runs.* из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  EventHandler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — очередь событий (runs.requested или runs.cancel).
	Queue Queue

	// Handler — обработчик событий.
	Handler EventHandler

	// Prefetch — сколько сообщений брокер выдаёт без подтверждения.
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", string(cfg.Queue)),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start читает очередь до отмены контекста, переживая разрывы
// соединения через Redialed.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		deliveries, err := c.openStream()
		if err != nil {
			c.logger.Error("consume setup failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.Redialed():
				c.logger.Info("amqp restored, consumer restarting")
				continue
			}
		}

		c.logger.Info("consumer started")

		if err := c.drain(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("delivery stream closed, waiting for redial")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.Redialed():
				continue
			}
		}
	}
}

// Stop останавливает Consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// openStream настраивает prefetch и подписывается на очередь.
func (c *Consumer) openStream() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("amqp channel not available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue),
		"",    // consumer tag выдаёт брокер
		false, // ack вручную
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	return deliveries, nil
}

// drain обрабатывает сообщения, пока канал доставки открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery stream closed")
			}
			c.dispatch(ctx, raw)
		}
	}
}

// dispatch декодирует сообщение и вызывает обработчик.
//
// Нечитаемое сообщение уходит в DLQ сразу. Ошибка обработчика
// возвращает сообщение в очередь один раз; повторный сбой уводит
// его в DLQ, чтобы сбойное событие не крутилось в очереди.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	ev, err := decodeRunEvent(raw.Body)
	if err != nil {
		c.logger.Error("malformed message", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("event received",
		"message_id", ev.MessageID,
		"type", ev.Type,
		"run_id", ev.RunID,
	)

	if err := c.handler(ctx, ev); err != nil {
		c.logger.Error("event handler failed",
			"message_id", ev.MessageID,
			"type", ev.Type,
			"run_id", ev.RunID,
			"error", err,
		)
		raw.Nack(false, !raw.Redelivered)
		return
	}

	raw.Ack(false)
}

// envelope — конверт сообщения на стороне чтения: payload остаётся
// сырым до выбора типа по Type.
type envelope struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decodeRunEvent разбирает тело сообщения в RunEvent.
func decodeRunEvent(body []byte) (RunEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return RunEvent{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	ev := RunEvent{MessageID: env.ID, Type: env.Type}

	switch env.Type {
	case MessageTypeRunRequested:
		var p RunRequestedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("unmarshal run.requested payload: %w", err)
		}
		if p.RunID == uuid.Nil {
			return ev, fmt.Errorf("run.requested without run_id")
		}
		ev.RunID = p.RunID
		ev.WorkflowID = p.WorkflowID

	case MessageTypeRunCancel:
		var p RunCancelPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("unmarshal run.cancel payload: %w", err)
		}
		if p.RunID == uuid.Nil {
			return ev, fmt.Errorf("run.cancel without run_id")
		}
		ev.RunID = p.RunID

	default:
		return ev, fmt.Errorf("unknown message type %q", env.Type)
	}

	return ev, nil
}
