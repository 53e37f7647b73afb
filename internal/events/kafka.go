package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var ErrPublisherClosed = errors.New("kafka publisher closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards bus events to a Kafka topic from a background
// loop. Messages are keyed by user so one user's events stay ordered.
type KafkaPublisher struct {
	w       messageWriter
	inbox   chan kafka.Message
	done    chan struct{}
	closing sync.Once
	mu      sync.RWMutex
	closed  bool
	logger  *zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, buf int, logger *zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, buf, logger)
}

func newKafkaPublisher(w messageWriter, buf int, logger *zerolog.Logger) *KafkaPublisher {
	if buf <= 0 {
		buf = 256
	}
	l := logger.With().Str("component", "kafka_publisher").Logger()
	return &KafkaPublisher{
		w:      w,
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		logger: &l,
	}
}

// Start drains the inbox until Close is called or ctx is done; pending
// messages are flushed before the writer closes.
func (p *KafkaPublisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				p.Close()
				for m := range p.inbox {
					p.write(context.Background(), m)
				}
				p.closeWriter()
				return
			case m, ok := <-p.inbox:
				if !ok {
					p.closeWriter()
					return
				}
				p.write(ctx, m)
			}
		}
	}()
}

func (p *KafkaPublisher) write(ctx context.Context, m kafka.Message) {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(writeCtx, m); err != nil {
		p.logger.Error().Err(err).Str("key", string(m.Key)).Msg("Kafka write failed")
	}
}

func (p *KafkaPublisher) closeWriter() {
	if err := p.w.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Kafka writer close failed")
	}
}

// Handle is an EventHandler. It never blocks: when the inbox is full the
// event is dropped and logged.
func (p *KafkaPublisher) Handle(event *Event) error {
	var keyed struct {
		UserID string `json:"user_id"`
	}
	_ = json.Unmarshal(event.Payload, &keyed)

	msg := kafka.Message{
		Key:   []byte(keyed.UserID),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		p.logger.Warn().Str("event_type", event.Type).Msg("Kafka inbox full, event dropped")
		return nil
	}
}

// Close stops accepting events; Start flushes what is queued.
func (p *KafkaPublisher) Close() {
	p.closing.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

// WaitClosed blocks until the background loop has exited.
func (p *KafkaPublisher) WaitClosed() {
	<-p.done
}

// Shutdown closes the inbox and waits for queued messages to be written,
// giving up when ctx is done.
func (p *KafkaPublisher) Shutdown(ctx context.Context) error {
	p.Close()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
