package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/snaplink/hookrelay/app"
)

// Consumer is the Event Router: it owns the bus connection, declares
// topology, and drives the consume loop that matches inbound events against
// subscriptions and fans them out to the Delivery Engine.
type Consumer struct {
	app        *app.Application
	conn       *amqp.Connection
	channel    *amqp.Channel
	tenants    *tenantReverseCache
	maxRequeue int

	workers   int
	queueSize int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer dials the bus and declares the topology described in
// topology.go. The returned Consumer is not yet consuming — call Start.
func NewConsumer(a *app.Application) (*Consumer, error) {
	conn, err := amqp.Dial(a.Config.BusURL)
	if err != nil {
		return nil, fmt.Errorf("dialing bus: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening bus channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring bus topology: %w", err)
	}

	if err := ch.Qos(a.Config.ConsumerPrefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setting consumer prefetch: %w", err)
	}

	return &Consumer{
		app:        a,
		conn:       conn,
		channel:    ch,
		tenants:    newTenantReverseCache(),
		maxRequeue: a.Config.MaxRequeueCount,
		workers:    a.Config.DeliveryWorkers,
		queueSize:  a.Config.DeliveryQueueSize,
		done:       make(chan struct{}),
	}, nil
}

// Start launches the message-pump and worker goroutines. It returns
// immediately; call Stop to drain and shut down.
func (c *Consumer) Start() error {
	deliveries, err := c.channel.Consume(queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting bus consume: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	tasks := make(chan amqp.Delivery, c.queueSize)

	var workerWg sync.WaitGroup
	workerWg.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go func() {
			defer workerWg.Done()
			for d := range tasks {
				c.handleDelivery(ctx, d)
			}
		}()
	}

	go func() {
		defer close(c.done)
		for d := range deliveries {
			tasks <- d
		}
		close(tasks)
		workerWg.Wait()
	}()

	return nil
}

// consumerTag names the router's bus consumer so Stop can cancel it.
const consumerTag = "hookrelay-router"

// Stop stops accepting new messages, waits for the worker pool to finish the
// messages already taken (each delivery still bounded by its own timeout),
// then cancels the shared context and closes the bus connection.
func (c *Consumer) Stop() {
	c.channel.Cancel(consumerTag, false)
	<-c.done
	if c.cancel != nil {
		c.cancel()
	}
	c.channel.Close()
	c.conn.Close()
}

func retryCount(headers amqp.Table) int32 {
	v, ok := headers["x-retry-count"]
	if !ok {
		return 0
	}
	n, ok := v.(int32)
	if !ok {
		return 0
	}
	return n
}

// handleDelivery decodes one bus message, translates its upstream type to a
// webhook event kind, resolves its tenant, finds matching subscriptions,
// and fans the delivery out concurrently. Malformed messages and upstream
// types outside the fixed mapping table are acked and dropped — they
// cannot be retried into validity. Storage errors are transient and
// requeue up to maxRequeue via a republish carrying an incremented retry
// header.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	msg, err := decodeMessage(d.Body)
	if err != nil {
		slog.Error("acking and dropping malformed bus message", "error", err)
		d.Ack(false)
		return
	}

	logger := slog.Default().With("event_id", msg.ID, "upstream_type", msg.Type)

	webhookKind, ok := mapEventKind(msg.Type)
	if !ok {
		logger.Warn("acking message with unmapped upstream event type")
		d.Ack(false)
		return
	}
	logger = logger.With("kind", webhookKind)

	c.tenants.observe(msg)

	tenantID, ok := resolveTenant(msg, c.tenants)
	if !ok {
		logger.Warn("could not resolve tenant for message, skipping")
		d.Ack(false)
		return
	}

	subs, err := c.app.Subscriptions.FindMatches(ctx, tenantID, webhookKind)
	if err != nil {
		c.requeueOrDeadLetter(d, fmt.Errorf("finding matching subscriptions: %w", err))
		return
	}

	if len(subs) == 0 {
		d.Ack(false)
		return
	}

	data, err := projectData(msg, webhookKind)
	if err != nil {
		logger.Error("acking and dropping message whose payload could not be projected", "error", err)
		d.Ack(false)
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		sub := sub
		filter, err := app.ParseFilter(sub.Filter)
		if err != nil {
			logger.Error("skipping subscription with unparseable filter", "subscription_id", app.UuidToString(sub.ID), "error", err)
			continue
		}
		if !app.MatchesFilter(filter, msg.Data) {
			continue
		}
		envelope := app.NewEnvelope(webhookKind, tenantID, app.UuidToString(sub.ID), data, msg.Timestamp)
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.Dispatch(ctx, c.app, sub, envelope)
		}()
	}
	wg.Wait()

	d.Ack(false)
}

// requeueOrDeadLetter handles a transient router-level failure: republish
// with an incremented x-retry-count header up to maxRequeue, then let
// further failures fall through to the dead-letter queue.
func (c *Consumer) requeueOrDeadLetter(d amqp.Delivery, cause error) {
	count := retryCount(d.Headers)
	if count >= int32(c.maxRequeue) {
		slog.Error("exhausted retries on bus message, dead-lettering", "error", cause, "retry_count", count)
		d.Nack(false, false)
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["x-retry-count"] = count + 1

	err := c.channel.Publish(d.Exchange, d.RoutingKey, false, false, amqp.Publishing{
		ContentType: d.ContentType,
		Body:        d.Body,
		Headers:     headers,
	})
	if err != nil {
		slog.Error("failed to republish bus message for retry, dead-lettering", "error", err)
		d.Nack(false, false)
		return
	}

	slog.Warn("requeuing bus message after transient error", "error", cause, "retry_count", count+1)
	d.Ack(false)
}
