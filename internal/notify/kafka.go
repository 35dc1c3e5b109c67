package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Message is the payload published for the email worker.
type Message struct {
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars"`
	SentAt   time.Time         `json:"sent_at"`
}

// Kafka publishes notifications to a topic consumed by the email worker.
// Delivery is asynchronous: Send returns once the message is queued and
// broker errors are only logged.
type Kafka struct {
	producer sarama.AsyncProducer
	topic    string
	done     chan struct{}
}

// NewKafka connects an async producer to brokers.
func NewKafka(brokers []string, topic string, lg *zap.Logger) (*Kafka, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return newKafka(producer, topic, lg), nil
}

func newKafka(producer sarama.AsyncProducer, topic string, lg *zap.Logger) *Kafka {
	k := &Kafka{producer: producer, topic: topic, done: make(chan struct{})}
	go func() {
		defer close(k.done)
		for err := range producer.Errors() {
			lg.Warn("Notification delivery failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
	return k
}

func (k *Kafka) Send(ctx context.Context, templateID string, vars map[string]string) error {
	data, err := json.Marshal(Message{Template: templateID, Vars: vars, SentAt: time.Now().UTC()})
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(vars["order_id"]),
		Value: sarama.ByteEncoder(data),
	}
	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and stops the producer.
func (k *Kafka) Close() error {
	err := k.producer.Close()
	<-k.done
	return err
}
