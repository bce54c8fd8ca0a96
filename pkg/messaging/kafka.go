package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	brokers   []string
	newWriter func(topic string) MessageWriter

	mu      sync.Mutex
	writers map[string]MessageWriter
	breaker *gobreaker.CircuitBreaker
}

func NewKafkaProducer(brokers []string) *KafkaProducer {
	kp := &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]MessageWriter),
	}
	kp.newWriter = func(topic string) MessageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(kp.brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		}
	}
	kp.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kafka-producer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	return kp
}

// NewKafkaProducerWithWriter builds a producer around a custom writer
// factory, e.g. for tests.
func NewKafkaProducerWithWriter(newWriter func(topic string) MessageWriter) *KafkaProducer {
	kp := NewKafkaProducer(nil)
	kp.newWriter = newWriter
	return kp
}

func (kp *KafkaProducer) GetWriter(topic string) MessageWriter {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if writer, exists := kp.writers[topic]; exists {
		return writer
	}
	writer := kp.newWriter(topic)
	kp.writers[topic] = writer
	return writer
}

// SendMessage writes value as JSON. Keys keep one user's events on one
// partition, so consumers see them in order.
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic, key string, value interface{}) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: jsonData,
	}

	_, err = kp.breaker.Execute(func() (interface{}, error) {
		return nil, kp.GetWriter(topic).WriteMessages(ctx, message)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("kafka %s unavailable: %w", topic, err)
	}
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (kp *KafkaProducer) Close() {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	for topic, writer := range kp.writers {
		if err := writer.Close(); err != nil {
			logrus.WithError(err).WithField("topic", topic).Warn("failed to close kafka writer")
		}
	}
}

type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		}),
	}
}

// ConsumeMessages hands every message value to handler until ctx ends.
// Handler errors are logged; the offset still advances.
func (kc *KafkaConsumer) ConsumeMessages(ctx context.Context, handler func(context.Context, []byte) error) {
	topic := kc.reader.Config().Topic
	for {
		message, err := kc.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			logrus.WithError(err).WithField("topic", topic).Error("error reading message")
			continue
		}

		if err := handler(ctx, message.Value); err != nil {
			logrus.WithError(err).WithField("topic", topic).Error("error handling message")
		}
	}
}

func (kc *KafkaConsumer) Close() error {
	return kc.reader.Close()
}

// Cart event types
const (
	CartItemAdded   = "cart.item_added"
	CartItemUpdated = "cart.item_updated"
	CartItemRemoved = "cart.item_removed"
	CartCleared     = "cart.cleared"
)

// CartEvent records one applied cart mutation.
type CartEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ServiceID  string    `json:"service_id,omitempty"`
	Quantity   int       `json:"quantity"`
	Lines      int       `json:"lines"`
	Total      float64   `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookingEvent is consumed from the booking service; a created booking
// empties the user's cart.
type BookingEvent struct {
	Type      string `json:"type"`
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
}

const BookingCreated = "booking.created"
