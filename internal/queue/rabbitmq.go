package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultQueueName holds extraction and deposit jobs
	DefaultQueueName = "email_processing_jobs"
	// DefaultDLQName collects jobs that exhausted their retries
	DefaultDLQName = "email_processing_jobs_dlq"
	// DefaultExchangeName is the direct exchange for immediate delivery
	DefaultExchangeName = "mailtasker_jobs"
	// DefaultDelayedExchangeName needs the delayed-message plugin
	DefaultDelayedExchangeName = "mailtasker_jobs_delayed"
)

// RabbitMQQueue implements JobQueue on top of AMQP 0-9-1.
type RabbitMQQueue struct {
	conn                *amqp.Connection
	channel             *amqp.Channel
	queueName           string
	dlqName             string
	exchangeName        string
	delayedExchangeName string
}

// NewRabbitMQQueue dials the broker and declares the exchange and queue
// topology before returning.
func NewRabbitMQQueue(amqpURL string) (*RabbitMQQueue, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{
		conn:                conn,
		channel:             ch,
		queueName:           DefaultQueueName,
		dlqName:             DefaultDLQName,
		exchangeName:        DefaultExchangeName,
		delayedExchangeName: DefaultDelayedExchangeName,
	}

	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup queues: %w", err)
	}

	return q, nil
}

// setup declares exchanges, the DLQ, and the work queue. The delayed
// exchange is optional; without the plugin, deferred jobs fall back to
// immediate delivery and rely on the NotBefore requeue check.
func (q *RabbitMQQueue) setup() error {
	err := q.channel.ExchangeDeclare(
		q.delayedExchangeName,
		"x-delayed-message",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	)
	if err != nil {
		// A failed declare closes the channel.
		if q.channel.IsClosed() {
			newCh, openErr := q.conn.Channel()
			if openErr != nil {
				return fmt.Errorf("failed to reopen channel after delayed exchange error: %w", openErr)
			}
			q.channel = newCh
		}
		fmt.Printf("Warning: delayed message exchange not available (plugin may not be installed): %v\n", err)
	}

	if err := q.channel.ExchangeDeclare(
		q.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(
		q.dlqName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{},
	); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := q.channel.QueueBind(q.dlqName, "dlq", q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	if _, err := q.channel.QueueDeclare(
		q.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    q.exchangeName,
			"x-dead-letter-routing-key": "dlq",
		},
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := q.channel.QueueBind(q.queueName, "jobs", q.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to exchange: %w", err)
	}

	// Bind failure here just means the plugin is missing.
	_ = q.channel.QueueBind(q.queueName, "jobs", q.delayedExchangeName, false, nil)

	return nil
}

// Enqueue publishes job as a persistent message. NotBefore routes
// through the delayed exchange; NotAfter becomes a per-message TTL.
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
	}

	if job.NotAfter != nil {
		if ttl := time.Until(*job.NotAfter); ttl > 0 {
			publishing.Expiration = fmt.Sprintf("%d", int(ttl.Milliseconds()))
		}
	}

	exchangeName := q.exchangeName
	if job.NotBefore != nil {
		if delay := time.Until(*job.NotBefore); delay > 0 {
			exchangeName = q.delayedExchangeName
			publishing.Headers = amqp.Table{
				"x-delay": int(delay.Milliseconds()),
			}
		}
	}

	if err := q.channel.PublishWithContext(
		ctx,
		exchangeName,
		"jobs",
		false, // mandatory
		false, // immediate
		publishing,
	); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	return nil
}

// Consume streams messages on a dedicated channel. prefetchCount bounds
// unacknowledged deliveries per consumer; 1 gives fair dispatch across
// workers, higher values trade fairness for throughput.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		q.queueName,
		"",    // consumer tag, auto-generated
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() {
			_ = consumeCh.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- fmt.Errorf("delivery channel closed")
					return
				}

				msg, requeue, err := q.decodeDelivery(&delivery, consumeCh)
				if err != nil {
					_ = delivery.Nack(false, false)
					errChan <- err
					continue
				}
				if msg == nil {
					_ = delivery.Nack(false, requeue)
					continue
				}

				select {
				case <-ctx.Done():
					// Shutting down, hand the message back.
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// decodeDelivery turns a raw delivery into a Message. A nil message with
// no error means the delivery should be nacked with the given requeue
// flag: expired messages are dropped, early deliveries go back.
func (q *RabbitMQQueue) decodeDelivery(delivery *amqp.Delivery, ch *amqp.Channel) (*Message, bool, error) {
	if delivery.Expiration != "" {
		return nil, false, nil
	}

	var job Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if !job.ShouldProcess() {
		return nil, true, nil
	}

	return &Message{
		Job:         &job,
		DeliveryTag: delivery.DeliveryTag,
		Channel:     ch,
	}, false, nil
}

// Dequeue pulls a single message, or nil when the queue is empty.
// DEPRECATED: Use Consume() for better performance and scalability
func (q *RabbitMQQueue) Dequeue(ctx context.Context) (*Message, error) {
	delivery, ok, err := q.channel.Get(q.queueName, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if !ok {
		return nil, nil
	}

	msg, requeue, err := q.decodeDelivery(&delivery, q.channel)
	if err != nil {
		_ = delivery.Nack(false, false)
		return nil, err
	}
	if msg == nil {
		_ = delivery.Nack(false, requeue)
		return nil, nil
	}

	return msg, nil
}

// HealthCheck verifies the underlying connection and channel are open.
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	if q.channel == nil || q.channel.IsClosed() {
		return fmt.Errorf("rabbitmq channel is closed")
	}
	return nil
}

// PurgeOlderThan drains dead-lettered messages older than retention and
// returns how many were dropped. The DLQ is delivered roughly in order, so
// the scan stops at the first message young enough to keep.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	purged := 0

	for {
		select {
		case <-ctx.Done():
			return purged, ctx.Err()
		default:
		}

		msg, ok, err := q.channel.Get(q.dlqName, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			return purged, nil
		}

		if !msg.Timestamp.IsZero() && msg.Timestamp.Before(cutoff) {
			if err := msg.Ack(false); err != nil {
				return purged, fmt.Errorf("failed to drop expired DLQ message: %w", err)
			}
			purged++
			continue
		}

		// Young message: put it back and stop scanning.
		if err := msg.Nack(false, true); err != nil {
			return purged, fmt.Errorf("failed to requeue DLQ message: %w", err)
		}
		return purged, nil
	}
}

// Close releases the channel and connection.
func (q *RabbitMQQueue) Close() error {
	var err error
	if q.channel != nil {
		err = q.channel.Close()
	}
	if q.conn != nil {
		if closeErr := q.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
