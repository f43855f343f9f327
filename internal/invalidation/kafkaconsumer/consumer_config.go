package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/library-locator/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// OpTimeout bounds each cache delete.
	OpTimeout time.Duration
}

func FromConfig(c config.Config) Config {
	return Config{
		Brokers:             config.SplitCSV(c.Invalidation.Brokers),
		Topic:               c.Invalidation.Topic,
		GroupID:             c.Invalidation.GroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: false,
		OpTimeout:           c.CacheOpTimeout,
	}
}
