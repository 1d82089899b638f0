package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"callwatch/internal/model"
)

// NewWriter returns a kafka-go writer with sensible defaults for this project.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 250 * time.Millisecond,
		BatchSize:    1,
	}
}

// NewReader constructs a reader bound to a consumer group.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		Topic:           topic,
		GroupID:         group,
		MinBytes:        1e4,
		MaxBytes:        10e6,
		StartOffset:     kafka.LastOffset,
		CommitInterval:  time.Second,
		ReadLagInterval: 5 * time.Second,
		MaxWait:         time.Second,
	})
}

// CallSink writes raw call records to the raw calls topic. It is the
// durable sink behind the ingestion buffer.
type CallSink struct {
	writer *kafka.Writer
}

// NewCallSink wraps a writer.
func NewCallSink(writer *kafka.Writer) *CallSink {
	return &CallSink{writer: writer}
}

// WriteCalls publishes one message per record, keyed by call id.
func (s *CallSink) WriteCalls(ctx context.Context, records []model.RawCallRecord) error {
	if len(records) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal call %s: %w", rec.CallID, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(rec.CallID),
			Value: payload,
		})
	}
	return s.writer.WriteMessages(ctx, messages...)
}
