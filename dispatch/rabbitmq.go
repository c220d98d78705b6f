package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"bulkjobs/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	BulkExchange    = "bulk.exchange"
	BulkQueue       = "bulk.jobs.queue"
	BulkRoutingKey  = "bulk.job"
	DLXExchange     = "bulk.dlx"
	DeadLetterQueue = "bulk.dead_letter.queue"
)

// Handler runs one task taken off the queue
type Handler func(ctx context.Context, task models.BulkTask)

// RabbitMQ carries bulk tasks between the API and worker processes
type RabbitMQ struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger zerolog.Logger
}

func NewRabbitMQ(url string, logger zerolog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	return &RabbitMQ{conn: conn, ch: ch, logger: logger}, nil
}

// SetupTopology declares the exchanges and queues. Idempotent.
func (r *RabbitMQ) SetupTopology() error {
	if err := r.ch.ExchangeDeclare(BulkExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", BulkExchange, err)
	}
	if err := r.ch.ExchangeDeclare(DLXExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", DLXExchange, err)
	}

	if _, err := r.ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", DeadLetterQueue, err)
	}
	if err := r.ch.QueueBind(DeadLetterQueue, "", DLXExchange, false, nil); err != nil {
		return err
	}

	// Undecodable tasks are dead-lettered
	_, err := r.ch.QueueDeclare(BulkQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DLXExchange,
	})
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", BulkQueue, err)
	}
	return r.ch.QueueBind(BulkQueue, BulkRoutingKey, BulkExchange, false, nil)
}

// Dispatch publishes a task as persistent JSON
func (r *RabbitMQ) Dispatch(ctx context.Context, task models.BulkTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode bulk task: %w", err)
	}
	return r.ch.PublishWithContext(ctx,
		BulkExchange,   // exchange
		BulkRoutingKey, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    task.JobID,
			Body:         body,
		})
}

// Consume hands each delivered task to handle until ctx is done. Messages are
// acknowledged after handle returns; a job's own failures are recorded on
// the job, so a handled task is never requeued.
func (r *RabbitMQ) Consume(ctx context.Context, prefetch int, handle Handler) error {
	if prefetch > 0 {
		if err := r.ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	deliveries, err := r.ch.Consume(
		BulkQueue,
		"",    // consumer
		false, // auto-ack is false. We will manually ack.
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", BulkQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			var task models.BulkTask
			if err := models.DecodeJSON(bytes.NewReader(msg.Body), &task); err != nil {
				r.logger.Error().Err(err).Str("message_id", msg.MessageId).Msg("undecodable bulk task")
				_ = msg.Nack(false, false)
				continue
			}
			handle(ctx, task)
			_ = msg.Ack(false)
		}
	}
}

func (r *RabbitMQ) Close() {
	r.ch.Close()
	r.conn.Close()
}
