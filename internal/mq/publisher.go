package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/queue"
)

// MessageType — тип сообщения.
type MessageType string

const (
	MessageTypeResultSubmitted MessageType = "result.submitted"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// ResultSubmittedPayload — копия тела put_work со сводкой.
type ResultSubmittedPayload struct {
	WorkerID string        `json:"worker_id"`
	Records  int           `json:"records"`
	Errors   int           `json:"errors"`
	Result   queue.Payload `json:"result"`
}

// Publisher публикует сданные результаты в обменник squll.results.
type Publisher struct {
	conn     *Connection
	workerID string
	identity domain.Identity
	host     domain.HostInfo
	logger   *slog.Logger
}

// PublisherConfig — конфигурация Publisher.
type PublisherConfig struct {
	WorkerID string
	Identity domain.Identity
	Host     domain.HostInfo
	Logger   *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, cfg PublisherConfig) *Publisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:     conn,
		workerID: cfg.WorkerID,
		identity: cfg.Identity,
		host:     cfg.Host,
		logger:   logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
		)
		return nil
	})
}

// PublishResult публикует result.submitted для сданного Result Set.
func (p *Publisher) PublishResult(ctx context.Context, task *domain.Task, results domain.ResultSet) error {
	return p.Publish(ctx, ExchangeResults, RoutingKeyResultSubmitted, p.resultMessage(task, results))
}

func (p *Publisher) resultMessage(task *domain.Task, results domain.ResultSet) *Message {
	return &Message{
		ID:   uuid.NewString(),
		Type: MessageTypeResultSubmitted,
		Payload: ResultSubmittedPayload{
			WorkerID: p.workerID,
			Records:  len(results),
			Errors:   results.ErrorCount(),
			Result:   queue.BuildPayload(p.identity, p.host, task, results),
		},
		Timestamp: time.Now().UTC(),
	}
}
