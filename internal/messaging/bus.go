package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/pkg/logger"
)

// Topics carried by the bus.
const (
	TopicFetchMatch    = "tourney.fetch.match"
	TopicFetchBeatmap  = "tourney.fetch.beatmap"
	TopicFetchPlayer   = "tourney.fetch.player"
	TopicAutomationRun = "tourney.automation.run"
	TopicPoison        = "tourney.poison"
)

// MetadataPriority is the metadata key holding the message priority.
const MetadataPriority = "priority"

// Config tunes the bus.
type Config struct {
	BufferSize    int64
	MaxRetries    int
	RetryInterval time.Duration
}

// Bus publishes pipeline messages and routes them to registered consumers.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	logger     *zap.Logger
}

// NewBus builds a bus over an in-process pub/sub. registry may be nil to skip router metrics.
func NewBus(cfg Config, log *zap.Logger, registry prometheus.Registerer) (*Bus, error) {
	adapter := logger.NewWatermillAdapter(log)
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, adapter)
	return NewBusWith(pubSub, pubSub, cfg, log, registry)
}

// NewBusWith builds a bus over an arbitrary publisher and subscriber pair.
func NewBusWith(pub message.Publisher, sub message.Subscriber, cfg Config, log *zap.Logger, registry prometheus.Registerer) (*Bus, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	adapter := logger.NewWatermillAdapter(log)

	router, err := message.NewRouter(message.RouterConfig{}, adapter)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	if registry != nil {
		builder := metrics.NewPrometheusMetricsBuilder(registry, "tourney", "broker")
		builder.AddPrometheusRouterMetrics(router)
	}

	poison, err := middleware.PoisonQueue(pub, TopicPoison)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}

	router.AddMiddleware(
		middleware.CorrelationID,
		poison,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryInterval,
			Multiplier:      2,
			Logger:          adapter,
		}.Middleware,
		middleware.Recoverer,
	)

	return &Bus{
		publisher:  pub,
		subscriber: sub,
		router:     router,
		logger:     log,
	}, nil
}

// Publish encodes payload as JSON and sends it to topic, carrying the correlation id and priority as metadata.
func (b *Bus) Publish(ctx context.Context, topic string, meta models.MessageMeta, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)

	correlationID := meta.CorrelationID
	if correlationID == "" {
		correlationID = watermill.NewUUID()
	}
	middleware.SetCorrelationID(correlationID, msg)
	msg.Metadata.Set(MetadataPriority, strconv.Itoa(int(meta.Priority)))

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.logger.Debug("message published",
		zap.String("topic", topic),
		zap.String("correlation_id", correlationID),
		zap.Int("priority", int(meta.Priority)),
	)
	return nil
}

// Handle registers a consumer for topic. Returning an error triggers retries and finally the poison topic.
func (b *Bus) Handle(name, topic string, handler message.NoPublishHandlerFunc) {
	b.router.AddNoPublisherHandler(name, topic, b.subscriber, handler)
}

// Subscribe exposes the raw subscription, used to observe the poison topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, topic)
}

// Run blocks until ctx is cancelled or the router is closed.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Close stops the router and the publisher.
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return err
	}
	return b.publisher.Close()
}
