// Package pubsub provides the Pub/Sub-backed work queue.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Config identifies the topic and subscription to use.
type Config struct {
	ProjectID    string
	Topic        string
	Subscription string
}

// Queue implements scrape.DeliveryQueue over Google Cloud Pub/Sub.
// Submits publish JSON-encoded work items; receives bridge the streaming
// pull callback into ack/nack-able deliveries.
type Queue struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	sub        *pubsub.Subscription
	deliveries chan scrape.Delivery
	logger     *zap.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
}

// New creates a Pub/Sub client and verifies the topic exists. It
// authenticates using Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check topic %q: %w", cfg.Topic, err)
	}
	if !ok {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.Topic, cfg.ProjectID)
	}
	q := &Queue{
		client:     client,
		topic:      topic,
		deliveries: make(chan scrape.Delivery),
		logger:     logger,
	}
	if cfg.Subscription != "" {
		q.sub = client.Subscription(cfg.Subscription)
	}
	return q, nil
}

// Submit publishes the work item and waits for the server ack so per-item
// failures surface to the producer's error counter.
func (q *Queue) Submit(ctx context.Context, item scrape.WorkItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"source": item.Source,
			"region": item.RegionCode,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish work item: %w", err)
	}
	return nil
}

// Receive blocks for the next delivery. The first call starts the
// streaming pull in the background.
func (q *Queue) Receive(ctx context.Context) (scrape.Delivery, error) {
	if q.sub == nil {
		return scrape.Delivery{}, fmt.Errorf("no subscription configured")
	}
	q.startOnce.Do(q.startPull)

	select {
	case <-ctx.Done():
		return scrape.Delivery{}, fmt.Errorf("receive canceled: %w", ctx.Err())
	case d, ok := <-q.deliveries:
		if !ok {
			return scrape.Delivery{}, fmt.Errorf("pubsub pull stopped")
		}
		return d, nil
	}
}

func (q *Queue) startPull() {
	pullCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		defer close(q.deliveries)
		err := q.sub.Receive(pullCtx, func(ctx context.Context, msg *pubsub.Message) {
			var item scrape.WorkItem
			if err := json.Unmarshal(msg.Data, &item); err != nil {
				// Malformed payloads can never succeed; drop them.
				q.logger.Warn("dropping malformed work item", zap.Error(err))
				msg.Ack()
				return
			}
			done := make(chan struct{})
			d := scrape.Delivery{
				Item: item,
				Ack: func() {
					msg.Ack()
					close(done)
				},
				Nack: func() {
					msg.Nack()
					close(done)
				},
			}
			select {
			case q.deliveries <- d:
				// Hold the callback open until the consumer decides, so the
				// client keeps extending the ack deadline meanwhile.
				select {
				case <-done:
				case <-ctx.Done():
				}
			case <-ctx.Done():
				msg.Nack()
			}
		})
		if err != nil && pullCtx.Err() == nil {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
		}
	}()
}

// Close stops the pull and releases the client.
func (q *Queue) Close() error {
	if q.cancel != nil {
		q.cancel()
	}
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func closeClient(client *pubsub.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("close pubsub client", zap.Error(err))
	}
}
