package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/IBM/sarama"

	"slotgateway/internal/logger"
)

// Producer wraps a Sarama async producer for dispatch events
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	log      *slog.Logger
	wg       sync.WaitGroup
}

// NewConfig returns the producer configuration used in production.
func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	return config
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) (*Producer, error) {
	producer, err := sarama.NewAsyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewProducerWith(producer, topic), nil
}

// NewProducerWith wraps an existing async producer and starts draining its
// result channels.
func NewProducerWith(producer sarama.AsyncProducer, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	p := &Producer{
		producer: producer,
		topic:    topic,
		log:      logger.WithComponent("kafka"),
	}
	p.wg.Add(2)
	go p.drainSuccesses()
	go p.drainErrors()
	return p
}

func (p *Producer) drainSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.log.Debug("dispatch event delivered", "partition", msg.Partition, "offset", msg.Offset)
	}
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		p.log.Error("dispatch event not delivered", "topic", perr.Msg.Topic, "error", perr.Err.Error())
	}
}

// PublishDispatch queues an event. It blocks only while the input buffer is
// full, and gives up when ctx is done.
func (p *Producer) PublishDispatch(ctx context.Context, event DispatchEvent) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	pm := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.RequestID),
		Value: sarama.ByteEncoder(msg),
		Headers: []sarama.RecordHeader{
			{Key: []byte("outcome"), Value: []byte(event.Outcome)},
			{Key: []byte("task-class"), Value: []byte(event.TaskClass)},
			{Key: []byte("slot-id"), Value: []byte(strconv.Itoa(event.SlotID))},
		},
	}

	select {
	case p.producer.Input() <- pm:
	case <-ctx.Done():
		return fmt.Errorf("queueing dispatch event: %w", ctx.Err())
	}

	p.log.Debug("queued dispatch event",
		"request_id", event.RequestID,
		"outcome", event.Outcome,
	)
	return nil
}

// Close flushes pending messages and shuts down the producer
func (p *Producer) Close() error {
	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}
