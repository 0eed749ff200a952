package notifications

import (
	"context"
	"errors"
	"fmt"

	"slotbook/internal/shared/config"
	"slotbook/pkg/logger"
	"slotbook/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type runner interface {
	Run(ctx context.Context) error
}

// Service wires the emitter to the configured transport and, for broker
// transports, the consumer that feeds the Redis hub.
type Service struct {
	Emitter *Emitter
	Hub     *RedisHub

	publisher Publisher
	consumers []runner
	logger    *logger.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewService(cfg config.NotificationsConfig, rdb *redis.Client, m *metrics.Metrics, log *logger.Logger) (*Service, error) {
	s := &Service{logger: log}
	if rdb != nil {
		s.Hub = NewRedisHub(rdb, log)
	}

	switch cfg.Transport {
	case "kafka":
		if s.Hub == nil {
			return nil, errors.New("kafka transport needs Redis")
		}
		pcfg := DefaultKafkaProducerConfig()
		pcfg.Brokers = cfg.Brokers
		pcfg.Topic = cfg.Topic
		pub, err := NewKafkaPublisher(pcfg, log)
		if err != nil {
			return nil, err
		}
		ccfg := DefaultConsumerConfig()
		ccfg.Brokers = cfg.Brokers
		ccfg.GroupID = cfg.GroupID
		ccfg.Topics = []string{cfg.Topic}
		ccfg.MaxRetries = cfg.MaxRetries
		ccfg.RetryBackoff = cfg.RetryBackoff
		consumer, err := NewKafkaConsumer(ccfg, s.Hub, log)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		s.publisher = pub
		s.consumers = append(s.consumers, consumer)
	case "rabbitmq":
		if s.Hub == nil {
			return nil, errors.New("rabbitmq transport needs Redis")
		}
		pub, err := NewRabbitPublisher(cfg.AMQPURL, cfg.Queue)
		if err != nil {
			return nil, err
		}
		s.publisher = pub
		s.consumers = append(s.consumers,
			NewRabbitConsumer(cfg.AMQPURL, cfg.Queue, s.Hub, cfg.MaxRetries, cfg.RetryBackoff, log))
	case "redis":
		if s.Hub == nil {
			return nil, errors.New("redis transport needs Redis")
		}
		s.publisher = s.Hub
	case "none", "":
		s.publisher = NewLogPublisher(log)
	default:
		return nil, fmt.Errorf("unknown notifications transport %q", cfg.Transport)
	}

	s.Emitter = NewEmitter(s.publisher, EmitterConfig{
		BufferSize:     cfg.BufferSize,
		Workers:        cfg.Workers,
		PublishTimeout: cfg.PublishTimeout,
	}, m, log)

	log.Info("notification service configured", "transport", cfg.Transport)
	return s, nil
}

// Start runs the emitter and consumers until Stop.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.Emitter.Start(ctx)

	s.group, ctx = errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		c := c
		s.group.Go(func() error { return c.Run(ctx) })
	}
}

// Stop drains the emitter, then stops consumers and closes the transport.
func (s *Service) Stop() error {
	s.Emitter.Stop()

	var errs []error
	if s.cancel != nil {
		s.cancel()
		if err := s.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("notification service stopped")
	return errors.Join(errs...)
}
