// Package lookupevents publishes one Kafka message per completed library
// lookup. Publishing never blocks the request path: when the queue is full
// the event is dropped and counted.
package lookupevents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/library-locator/internal/core/observability"
	"github.com/mohammed-shakir/library-locator/internal/locator"
	"github.com/mohammed-shakir/library-locator/internal/mapper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event carries a coarse H3 cell instead of the caller's coordinate.
type Event struct {
	ISBN      string    `json:"isbn"`
	Cell      string    `json:"cell,omitempty"`
	Region    string    `json:"region"`
	SubRegion string    `json:"sub_region"`
	Mode      string    `json:"mode"`
	Strategy  string    `json:"strategy,omitempty"`
	Found     int       `json:"found"`
	TookMS    int64     `json:"took_ms"`
	TS        time.Time `json:"ts"`
}

type Publisher struct {
	topic   string
	logger  *slog.Logger
	prod    sarama.AsyncProducer
	events  chan Event
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("lookupevents: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, queueSize, logger), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		logger:  logger,
		prod:    prod,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("lookup event marshal failed", "error", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.ISBN),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("lookup event producer error", "error", err)
			}
		}
	}()

	return p
}

func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		observability.IncLookupEventDropped()
	}
}

// Close drains queued events into the producer and closes it.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("lookupevents: close producer: %w", err)
	}
	return nil
}

// Observer adapts the publisher to locator.WithObserver. The origin is
// reduced to an H3 cell at res; a mapping failure leaves the cell empty.
func (p *Publisher) Observer(m mapper.Interface, res int) func(context.Context, locator.Lookup) {
	return func(_ context.Context, lk locator.Lookup) {
		var cell string
		if m != nil {
			if c, err := m.CellForPoint(lk.Origin, res); err == nil {
				cell = c
			}
		}
		p.Publish(Event{
			ISBN:      lk.ISBN,
			Cell:      cell,
			Region:    lk.Region.Region,
			SubRegion: lk.Region.SubRegion,
			Mode:      string(lk.Mode),
			Strategy:  lk.Strategy,
			Found:     lk.Found,
			TookMS:    lk.Duration.Milliseconds(),
			TS:        time.Now().UTC(),
		})
	}
}
