// Package alert delivers operator alerts raised by indexing runs.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is the payload handed to every Alerter.
type Alert struct {
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	ChainID  uint64    `json:"chain_id,omitempty"`
	At       time.Time `json:"at"`
}

type Alerter interface {
	Send(ctx context.Context, a Alert) error
	Close() error
}

// LogAlerter writes alerts to a zap logger.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Send(ctx context.Context, a Alert) error {
	fields := []zap.Field{
		zap.String("title", a.Title),
		zap.String("severity", string(a.Severity)),
		zap.Uint64("chain_id", a.ChainID),
		zap.String("message", a.Message),
	}
	if a.Severity == SeverityCritical {
		l.logger.Error("alert", fields...)
	} else {
		l.logger.Warn("alert", fields...)
	}
	return nil
}

func (l *LogAlerter) Close() error { return nil }

// KafkaAlerter publishes alerts as JSON to a Kafka topic.
type KafkaAlerter struct {
	topic string
	p     sarama.SyncProducer
}

func NewKafkaAlerter(brokers []string, topic string, cfg *sarama.Config) (*KafkaAlerter, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no brokers")
	}
	if topic == "" {
		return nil, errors.New("alert topic is required")
	}
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.RequiredAcks = sarama.WaitForAll
		cfg.Producer.Retry.Max = 5
		cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaAlerterWithProducer(topic, p), nil
}

// NewKafkaAlerterWithProducer wraps an existing producer.
func NewKafkaAlerterWithProducer(topic string, p sarama.SyncProducer) *KafkaAlerter {
	return &KafkaAlerter{topic: topic, p: p}
}

func (k *KafkaAlerter) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", a.ChainID)),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := k.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka alert failed: %w", err)
	}
	return nil
}

func (k *KafkaAlerter) Close() error {
	if k.p != nil {
		return k.p.Close()
	}
	return nil
}

// Multi sends every alert to all of its alerters and joins their errors.
type Multi []Alerter

func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, alerter := range m {
		if err := alerter.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, alerter := range m {
		if err := alerter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
