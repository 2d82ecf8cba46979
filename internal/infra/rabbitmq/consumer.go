package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxBackoff = 60 * time.Second

type MessageHandler func(ctx context.Context, body []byte) error

type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	workerCount int
	baseDelay   time.Duration
	handler     MessageHandler
	attempts    *attemptTracker
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

// NewConsumer declares the topology: a topic exchange, the sampling queue,
// the DLQ and the status queue bound to both status and progress keys.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Queue,
		workerCount: cfg.WorkerCount,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		attempts:    newAttemptTracker(),
		logger:      logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	bindings := []struct{ queue, key string }{
		{cfg.Queue, cfg.Queue},
		{cfg.StatusQueue, cfg.StatusQueue},
		{cfg.StatusQueue, cfg.StatusQueue + progressRoutingSuffix},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", b.queue, b.key, err)
		}
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", c.workerCount),
		zap.String("queue", c.queue),
	)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	key := jobKey(d.Body)
	if key != "" {
		log = log.With(zap.String("job_id", key))
	}

	err := c.handler(extractTrace(ctx, d.Headers), d.Body)
	if err == nil {
		c.attempts.reset(key)
		_ = d.Ack(false)
		return
	}

	// A pass interrupted by shutdown goes back to the queue untouched.
	if ctx.Err() != nil {
		log.Info("sampling job interrupted by shutdown, requeueing", zap.Error(err))
		_ = d.Nack(false, true)
		return
	}

	attempt := max(attemptFromHeaders(d.Headers), c.attempts.next(key))
	delay := backoff(c.baseDelay, attempt)
	log.Warn("sampling job failed, requeueing after backoff",
		zap.Error(err),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
	_ = d.Nack(false, true)
}

// jobKey extracts the job id used to track redeliveries of the same job.
// Bodies that are not sampling jobs yield "".
func jobKey(body []byte) string {
	var peek struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return ""
	}
	return peek.JobID
}

// attemptTracker counts failed deliveries per job on this worker. Requeued
// messages carry no x-death header, so the broker alone cannot tell how many
// times a job has bounced.
type attemptTracker struct {
	mu     sync.Mutex
	failed map[string]int
}

func newAttemptTracker() *attemptTracker {
	return &attemptTracker{failed: make(map[string]int)}
}

func (t *attemptTracker) next(key string) int {
	if key == "" {
		return 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed[key]++
	return t.failed[key]
}

func (t *attemptTracker) reset(key string) {
	t.mu.Lock()
	delete(t.failed, key)
	t.mu.Unlock()
}

func attemptFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 1
	}
	if xDeath, ok := headers["x-death"]; ok {
		if deaths, ok := xDeath.([]interface{}); ok && len(deaths) > 0 {
			return len(deaths)
		}
	}
	return 1
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff || delay < 0 {
		delay = maxBackoff
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
