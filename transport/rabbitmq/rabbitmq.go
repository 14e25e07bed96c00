// Package rabbitmq publishes records to durable fanout exchanges, one per
// topic. Each half owns its AMQP connection.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/reportflow/transport"
)

const (
	TransportName = "rabbitmq"

	tailQueueSuffix = "tail"
)

var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return amqp.NewPublisher(cfg, logger)
}

var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return amqp.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the RabbitMQ transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.RabbitMQCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

// Build creates the AMQP publisher and/or subscriber.
func Build(_ context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	var t transport.Transport

	if role.Publishes() {
		pub, err := PublisherFactory(PublisherConfig(cfg), logger)
		if err != nil {
			return transport.Transport{}, err
		}
		t.Publisher = pub
	}

	if role.Subscribes() {
		sub, err := SubscriberFactory(SubscriberConfig(cfg), logger)
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

// PublisherConfig waits for broker confirms so a publish error reaches the
// emitter's fallback path.
func PublisherConfig(cfg transport.Config) amqp.Config {
	c := amqp.NewDurablePubSubConfig(cfg.GetRabbitMQURL(), amqp.GenerateQueueNameTopicName)
	c.Publish.ConfirmDelivery = true
	return c
}

// SubscriberConfig binds a durable "<topic>_tail" queue to each exchange.
func SubscriberConfig(cfg transport.Config) amqp.Config {
	return amqp.NewDurablePubSubConfig(
		cfg.GetRabbitMQURL(),
		amqp.GenerateQueueNameTopicNameWithSuffix(tailQueueSuffix),
	)
}
