package deadletter

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	kafkautil "github.com/harish-x/log-boy/pkg/kafka"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes dead letters to a Kafka topic as protobuf-encoded Structs.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}
	writer := kafkautil.NewWriter(brokers, topic)

	slog.Info("Dead-letter Kafka sink configured",
		"brokers", brokers,
		"topic", topic,
	)
	return &KafkaSink{writer: writer, topic: topic}, nil
}

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, l *Letter) error {
	msg, err := buildMessage(l)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write dead letter to %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

// encodeLetter serializes a letter as a google.protobuf.Struct holding the delivery
// event fields plus the failure metadata.
func encodeLetter(l *Letter) ([]byte, error) {
	fields := map[string]any{}
	if l.Event != nil {
		data, err := json.Marshal(l.Event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("failed to flatten event: %w", err)
		}
	}
	fields["channel"] = l.Channel
	fields["failure_reason"] = l.Reason()
	fields["failed_at"] = l.FailedAt.UTC().Format(time.RFC3339)

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build dead letter struct: %w", err)
	}
	payload, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	return payload, nil
}

func buildMessage(l *Letter) (kafka.Message, error) {
	payload, err := encodeLetter(l)
	if err != nil {
		return kafka.Message{}, err
	}

	var ruleID, project string
	if l.Event != nil {
		ruleID, project = l.Event.ID, l.Event.ProjectName
	}
	return kafka.Message{
		Key:   hashKey(project + "/" + ruleID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/x-protobuf")},
			{Key: "project", Value: []byte(project)},
			{Key: "rule_id", Value: []byte(ruleID)},
		},
		Time: l.FailedAt,
	}, nil
}

// hashKey returns the first 16 bytes of the SHA256 of s.
func hashKey(s string) []byte {
	hash := sha256.Sum256([]byte(s))
	return hash[:16]
}
