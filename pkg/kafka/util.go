// Package kafka holds the Kafka producer settings shared by the alert manager.
package kafka

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// WriteTimeout bounds a single produce request.
const WriteTimeout = 10 * time.Second

// ValidateProducerParams validates common producer parameters.
// Returns an error if any parameter is invalid.
func ValidateProducerParams(brokers []string, topic string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	return nil
}

// NewWriter creates a writer that keys messages to partitions by hash and waits
// for the leader to acknowledge each write.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}
