// Package kafka publishes batch summaries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"github.com/livinlefevreloca/fastadapter/internal/syncer"
)

// Publisher is a syncer.SummaryWriter that sends each summary as one JSON
// message keyed by batch kind, so a kind's summaries stay on one partition
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewSaramaConfig builds the producer configuration for config
func NewSaramaConfig(config Config) *sarama.Config {
	sc := sarama.NewConfig()
	if config.ClientID != "" {
		sc.ClientID = config.ClientID
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	if config.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = config.MaxMessageBytes
	}
	if config.Timeout > 0 {
		sc.Producer.Timeout = config.Timeout
		sc.Net.DialTimeout = config.Timeout
	}
	sc.Producer.Retry.Max = config.MaxRetries
	if config.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = config.RetryBackoff
	}
	return sc
}

// New connects a synchronous producer to the configured brokers
func New(config Config, logger *slog.Logger) (*Publisher, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, NewSaramaConfig(config))
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}

	logger.Info("kafka publisher connected",
		"brokers", config.Brokers,
		"topic", config.Topic)

	return NewWithProducer(producer, config.Topic, logger), nil
}

// NewWithProducer wraps an existing producer
func NewWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// WriteSummaries implements syncer.SummaryWriter
func (p *Publisher) WriteSummaries(ctx context.Context, records []syncer.SummaryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := make([]*sarama.ProducerMessage, 0, len(records))
	for _, record := range records {
		value, err := json.Marshal(record)
		if err != nil {
			return errors.Wrapf(err, "encode summary %s", record.BatchID)
		}

		messages = append(messages, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(record.Kind),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("batch_id"), Value: []byte(record.BatchID)},
			},
			Timestamp: record.FlushedAt,
		})
	}

	if err := p.producer.SendMessages(messages); err != nil {
		p.logger.Error("kafka publish failed",
			"topic", p.topic,
			"count", len(messages),
			"error", err)

		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			for _, perr := range perrs {
				var key []byte
				if perr.Msg != nil && perr.Msg.Key != nil {
					key, _ = perr.Msg.Key.Encode()
				}
				p.logger.Error("kafka message rejected",
					"key", string(key),
					"error", perr.Err)
			}
		}
		return errors.Wrap(err, "publish summaries")
	}

	p.logger.Debug("published batch summaries",
		"topic", p.topic,
		"count", len(messages))
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return errors.Wrap(p.producer.Close(), "close kafka producer")
}
