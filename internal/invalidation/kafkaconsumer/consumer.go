// Package kafkaconsumer applies holdings-change events from Kafka to the
// search-result cache.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/library-locator/internal/cache"
	obs "github.com/mohammed-shakir/library-locator/internal/core/observability"
	"github.com/mohammed-shakir/library-locator/internal/invalidation"
	mylog "github.com/mohammed-shakir/library-locator/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Consumer struct {
	cfg       Config
	logger    *slog.Logger
	cache     cache.Interface
	districts invalidation.SubRegionLister
	zlog      *zerolog.Logger
}

// New wires a consumer. zl carries the structured per-event log; nil
// disables it.
func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, c cache.Interface, districts invalidation.SubRegionLister) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = time.Second
	}
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	child := zl.With().Str("component", "kafka_consumer").Logger()
	return &Consumer{
		cfg:       cfg,
		logger:    logger,
		cache:     c,
		districts: districts,
		zlog:      &child,
	}
}

// Start consumes until ctx is done. Consume errors are logged and retried
// after a short pause.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil || c.districts == nil {
		return errors.New("kafkaconsumer: missing dependencies (cache/districts)")
	}
	if len(c.cfg.Brokers) == 0 || c.cfg.Topic == "" {
		return errors.New("kafkaconsumer: brokers and topic are required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				obs.IncKafkaConsumerError("consume")
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies a single event. Malformed events are logged and
// skipped so they cannot block the partition; cache failures are returned
// so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logBadMessage(ctx, msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("validate")
		obs.ObserveInvalidation(ev.Op, 0, time.Since(start), err)
		c.logBadMessage(ctx, msg, "validate", err)
		return nil
	}

	delKeys := ev.Keys(c.districts)

	dctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	err := c.cache.Del(dctx, delKeys...)
	cancel()
	if err != nil {
		obs.IncKafkaConsumerError("cache_del")
		obs.ObserveInvalidation(ev.Op, 0, time.Since(start), err)

		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "cache_del").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int("keys", len(delKeys)).
			Err(err).
			Msg("kafka error")

		return fmt.Errorf("cache del: %w", err)
	}

	obs.ObserveInvalidation(ev.Op, len(delKeys), time.Since(start), nil)
	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Str("isbn", ev.ISBN).
		Str("region", ev.Region).
		Str("sub_region", ev.SubRegion).
		Int("keys", len(delKeys)).
		Msg("invalidated keys")

	return nil
}

func (c *Consumer) logBadMessage(ctx context.Context, msg *sarama.ConsumerMessage, kind string, err error) {
	mylog.FromContext(ctx, c.zlog).Error().
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Err(err).
		Msg("kafka message skipped")
}
