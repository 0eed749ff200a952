package notifications

import (
	"context"
	"fmt"
	"time"

	"slotbook/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaProducerConfig contains configuration for the Kafka publisher
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	RetryMax         int
	Timeout          time.Duration
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "slotbook.waitlist",
		RetryMax:         3,
		Timeout:          10 * time.Second,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// SaramaConfig builds the producer settings. Messages are keyed by user
// and hash partitioned, so one user's events stay ordered.
func (c *KafkaProducerConfig) SaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = c.RequiredAcks
	cfg.Producer.Compression = c.CompressionType
	cfg.Producer.Retry.Max = c.RetryMax
	cfg.Producer.Timeout = c.Timeout
	cfg.Producer.Idempotent = c.IdempotentWrites
	cfg.Producer.MaxMessageBytes = c.MaxMessageBytes
	if c.IdempotentWrites {
		cfg.Net.MaxOpenRequests = 1
	}
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// KafkaPublisher publishes notifications to a Kafka topic
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logger.Logger
}

func NewKafkaPublisher(cfg *KafkaProducerConfig, log *logger.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	log.Info("kafka publisher created", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg *Message) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(msg.PartitionKey()),
		Value:     sarama.ByteEncoder(body),
		Headers:   headersFor(msg),
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to send notification to Kafka: %w", err)
	}

	p.logger.DebugContext(ctx, "notification published to kafka",
		"topic", p.topic, "partition", partition, "offset", offset, "event", msg.Event)
	return nil
}

func headersFor(msg *Message) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("message_id"), Value: []byte(msg.ID.String())},
		{Key: []byte("event"), Value: []byte(msg.Event)},
		{Key: []byte("user_id"), Value: []byte(msg.UserID.String())},
		{Key: []byte("slot_id"), Value: []byte(msg.SlotID.String())},
	}
}

func (p *KafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topics            []string
	SessionTimeout    time.Duration
	Heartbeat         time.Duration
	MaxProcessingTime time.Duration
	OffsetOldest      bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "slotbook-notifications",
		Topics:            []string{"slotbook.waitlist"},
		SessionTimeout:    30 * time.Second,
		Heartbeat:         3 * time.Second,
		MaxProcessingTime: time.Minute,
		MaxRetries:        3,
		RetryBackoff:      500 * time.Millisecond,
	}
}

// KafkaConsumer reads the notification topic and forwards each message to sink.
type KafkaConsumer struct {
	group  sarama.ConsumerGroup
	config *ConsumerConfig
	sink   Publisher
	logger *logger.Logger
}

func NewKafkaConsumer(cfg *ConsumerConfig, sink Publisher, log *logger.Logger) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	saramaConfig.Consumer.Group.Heartbeat.Interval = cfg.Heartbeat
	saramaConfig.Consumer.MaxProcessingTime = cfg.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	if cfg.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &KafkaConsumer{group: group, config: cfg, sink: sink, logger: log}, nil
}

// Run consumes until ctx is cancelled, then closes the group.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	go c.handleErrors()

	handler := &ConsumerGroupHandler{
		sink:       c.sink,
		maxRetries: c.config.MaxRetries,
		backoff:    c.config.RetryBackoff,
		logger:     c.logger,
	}
	c.logger.Info("kafka consumer started", "group", c.config.GroupID, "topics", c.config.Topics)

	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, c.config.Topics, handler); err != nil {
			c.logger.Warn("kafka consume failed", "error", err.Error())
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}

	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *KafkaConsumer) handleErrors() {
	for err := range c.group.Errors() {
		c.logger.Warn("consumer group error", "error", err.Error())
	}
}

// ConsumerGroupHandler implements sarama.ConsumerGroupHandler.
type ConsumerGroupHandler struct {
	sink       Publisher
	maxRetries int
	backoff    time.Duration
	logger     *logger.Logger
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.processMessage(session.Context(), message); err != nil {
				h.logger.Warn("notification not delivered",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err.Error(),
				)
			}
			// Live delivery is best effort; a failed message is not replayed.
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *ConsumerGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	msg, err := ParseMessage(message.Value)
	if err != nil {
		return err
	}
	return deliverWithRetry(ctx, h.sink, msg, h.maxRetries, h.backoff, h.logger)
}
