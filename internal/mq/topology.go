package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeResults Exchange = "squll.results"

	QueueResultsSubmitted Queue = "results.submitted"

	RoutingKeyResultSubmitted RoutingKey = "result.submitted"
)

// SetupTopology объявляет обменник результатов, очередь и привязку. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeResults),
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeResults, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueResultsSubmitted),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueResultsSubmitted, err)
		}

		err = ch.QueueBind(
			string(QueueResultsSubmitted),
			string(RoutingKeyResultSubmitted),
			string(ExchangeResults),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueResultsSubmitted, ExchangeResults, err)
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логов.
func TopologyInfo() string {
	return fmt.Sprintf("%s (topic) -> %s [routing: %s]",
		ExchangeResults, QueueResultsSubmitted, RoutingKeyResultSubmitted)
}
