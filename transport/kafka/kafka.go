// Package kafka ships records to Kafka. The producer is idempotent, waits
// for all in-sync replicas and keys every message by correlation id so one
// request's records share a partition.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/reportflow/internal/runtime/metadata"
	"github.com/drblury/reportflow/transport"
)

const (
	TransportName = "kafka"

	defaultRequestTimeout = 3 * time.Second
	producerRetries       = 5
)

// PublisherFactory is swapped in tests.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory is swapped in tests.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the Kafka transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.KafkaCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// Build creates the Kafka publisher and/or subscriber.
func Build(_ context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	marshaler := kafka.NewWithPartitioningMarshaler(PartitionKey)
	var t transport.Transport

	if role.Publishes() {
		pub, err := PublisherFactory(kafka.PublisherConfig{
			Brokers:               cfg.GetKafkaBrokers(),
			Marshaler:             marshaler,
			OverwriteSaramaConfig: ProducerConfig(cfg),
		}, logger)
		if err != nil {
			return transport.Transport{}, err
		}
		t.Publisher = pub
	}

	if role.Subscribes() {
		sub, err := SubscriberFactory(kafka.SubscriberConfig{
			Brokers:               cfg.GetKafkaBrokers(),
			Unmarshaler:           marshaler,
			ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
			OverwriteSaramaConfig: ConsumerConfig(cfg),
		}, logger)
		if err != nil {
			if t.Publisher != nil {
				_ = t.Publisher.Close()
			}
			return transport.Transport{}, err
		}
		t.Subscriber = sub
	}
	return t, nil
}

// PartitionKey keys a message by its correlation id header.
func PartitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(metadata.KeyCorrelationID), nil
}

// ProducerConfig is the sarama producer configuration for record shipping.
// MaxOpenRequests is 1 because sarama requires it for idempotence; the
// broker publisher caps concurrency above this layer.
func ProducerConfig(cfg transport.Config) *sarama.Config {
	timeout := requestTimeout(cfg)

	sc := kafka.DefaultSaramaSyncPublisherConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		sc.ClientID = id
	}
	if !sc.Version.IsAtLeast(sarama.V2_5_0_0) {
		sc.Version = sarama.V2_5_0_0
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = true
	sc.Producer.Retry.Max = producerRetries
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = timeout
	sc.Net.MaxOpenRequests = 1
	sc.Net.DialTimeout = timeout
	sc.Net.ReadTimeout = timeout
	sc.Net.WriteTimeout = timeout
	return sc
}

// ConsumerConfig reads record topics from the oldest retained offset.
func ConsumerConfig(cfg transport.Config) *sarama.Config {
	sc := kafka.DefaultSaramaSubscriberConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		sc.ClientID = id
	}
	if !sc.Version.IsAtLeast(sarama.V2_5_0_0) {
		sc.Version = sarama.V2_5_0_0
	}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	return sc
}

func requestTimeout(cfg transport.Config) time.Duration {
	if d := cfg.GetBrokerRequestTimeout(); d > 0 {
		return d
	}
	return defaultRequestTimeout
}
