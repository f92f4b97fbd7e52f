// Package viewevents publishes feature selection events to Kafka.
package viewevents

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
)

const KindSelect = "select"

type Event struct {
	Session   string    `json:"session"`
	FeatureID string    `json:"feature_id"`
	Label     string    `json:"label,omitempty"`
	Kind      string    `json:"kind"`
	TS        time.Time `json:"ts"`
}

// Publisher sends events from a bounded queue. Publish never blocks; when
// the queue is full the event is dropped.
type Publisher struct {
	topic string
	log   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	events chan Event

	prod     sarama.AsyncProducer
	stopped  chan struct{}
	errsDone chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, log zerolog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("viewevents: create async producer: %w", err)
	}
	return NewPublisherWithProducer(prod, topic, queueSize, log), nil
}

// NewPublisherWithProducer takes ownership of prod; Close closes it.
func NewPublisherWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log zerolog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Publisher{
		topic:    topic,
		log:      log,
		events:   make(chan Event, queueSize),
		prod:     prod,
		stopped:  make(chan struct{}),
		errsDone: make(chan struct{}),
	}
	go p.pump()
	go p.drainErrors()
	return p
}

func (p *Publisher) pump() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			p.log.Error().Err(err).Msg("viewevents: marshal")
			observability.IncViewEvent("error")
			continue
		}
		p.prod.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			// keyed by session so one session's events stay ordered
			Key:   sarama.StringEncoder(ev.Session),
			Value: sarama.ByteEncoder(b),
		}
		observability.IncViewEvent("published")
	}
}

func (p *Publisher) drainErrors() {
	defer close(p.errsDone)
	for err := range p.prod.Errors() {
		if err == nil {
			continue
		}
		observability.IncViewEvent("error")
		p.log.Warn().Err(err.Err).Str("topic", err.Msg.Topic).Msg("viewevents: producer error")
	}
}

func (p *Publisher) Publish(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if ev.Kind == "" {
		ev.Kind = KindSelect
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		observability.IncViewEvent("dropped")
	}
}

// Close flushes queued events and closes the producer. It is safe to call
// more than once.
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
	err := p.prod.Close()
	<-p.errsDone
	if err != nil {
		return fmt.Errorf("viewevents: close producer: %w", err)
	}
	return nil
}
