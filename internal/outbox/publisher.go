package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Header keys set on every run event record.
const (
	HeaderEventType     = "event_type"
	HeaderUserID        = "user_id"
	HeaderSchemaSubject = "schema_subject"
)

const (
	frameMagic     byte = 0
	frameHeaderLen      = 5
)

var (
	// ErrPublisherClosed is returned by WriteMessages after Close.
	ErrPublisherClosed = errors.New("outbox: publisher closed")
	// ErrUnkeyedRecord is returned for records without a user key; such a
	// record would lose per-user ordering.
	ErrUnkeyedRecord = errors.New("outbox: run event record has no user key")
)

// EncodeFrame prefixes payload with the magic byte and the big-endian schema id.
func EncodeFrame(schemaID int, payload []byte) []byte {
	frame := make([]byte, frameHeaderLen+len(payload))
	frame[0] = frameMagic
	binary.BigEndian.PutUint32(frame[1:frameHeaderLen], uint32(schemaID))
	copy(frame[frameHeaderLen:], payload)
	return frame
}

// DecodeFrame splits a framed record value into its schema id and a copy of the payload.
func DecodeFrame(value []byte) (int, []byte, error) {
	if len(value) < frameHeaderLen {
		return 0, nil, fmt.Errorf("frame too short: %d bytes", len(value))
	}
	if value[0] != frameMagic {
		return 0, nil, fmt.Errorf("unknown magic byte: %d", value[0])
	}
	schemaID := int(binary.BigEndian.Uint32(value[1:frameHeaderLen]))
	return schemaID, append([]byte(nil), value[frameHeaderLen:]...), nil
}

// runRecord builds the Kafka record for one outbox row.
func runRecord(msg Message, schemaID int, at time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: EncodeFrame(schemaID, msg.Payload),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderUserID, Value: []byte(msg.UserID)},
			{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
		},
		Time: at.UTC(),
	}
}

// PublisherConfig tunes the Kafka writers behind a Publisher.
type PublisherConfig struct {
	Brokers      []string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// DefaultPublisherConfig flushes small batches quickly; run writes are low volume.
func DefaultPublisherConfig(brokers []string) PublisherConfig {
	return PublisherConfig{
		Brokers:      brokers,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// Publisher writes run event records to Kafka with one writer per topic.
// Records are hashed on their key so each user's events stay on one partition.
type Publisher struct {
	cfg     PublisherConfig
	mu      sync.Mutex
	writers map[string]*kafka.Writer
	closed  bool
}

// NewPublisher creates a Publisher. Writers are opened on first use.
func NewPublisher(cfg PublisherConfig) *Publisher {
	return &Publisher{cfg: cfg, writers: make(map[string]*kafka.Writer)}
}

// WriteMessages publishes msgs to topic. Every record must carry a key.
func (p *Publisher) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	for i := range msgs {
		if len(msgs[i].Key) == 0 {
			return fmt.Errorf("%w (topic=%s)", ErrUnkeyedRecord, topic)
		}
	}
	writer, err := p.writer(topic)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) writer(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPublisherClosed
	}
	if writer, ok := p.writers[topic]; ok {
		return writer, nil
	}
	writer := newRunWriter(p.cfg, topic)
	p.writers[topic] = writer
	return writer, nil
}

func newRunWriter(cfg PublisherConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Close flushes and releases every writer. Later writes fail with ErrPublisherClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
