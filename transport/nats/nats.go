// Package nats ships records over core NATS subjects. JetStream is disabled:
// records are fire-and-forget notifications for live consumers.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/reportflow/transport"
)

const (
	TransportName = "nats"

	reconnectWait  = 2 * time.Second
	defaultTimeout = 3 * time.Second
)

// PublisherFactory is swapped in tests.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory is swapped in tests.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the NATS transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.NATSCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// Build creates the NATS publisher and/or subscriber.
func Build(_ context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	marshaler := &nats.NATSMarshaler{}
	opts := ConnectOptions(cfg)
	js := nats.JetStreamConfig{Disabled: true}
	var t transport.Transport

	if role.Publishes() {
		pub, err := PublisherFactory(nats.PublisherConfig{
			URL:         cfg.GetNATSURL(),
			NatsOptions: opts,
			Marshaler:   marshaler,
			JetStream:   js,
		}, logger)
		if err != nil {
			return transport.Transport{}, err
		}
		t.Publisher = pub
	}

	if role.Subscribes() {
		sub, err := SubscriberFactory(nats.SubscriberConfig{
			URL:              cfg.GetNATSURL(),
			NatsOptions:      opts,
			Unmarshaler:      marshaler,
			SubscribersCount: 1,
			CloseTimeout:     timeout(cfg),
			SubscribeTimeout: timeout(cfg),
			JetStream:        js,
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

// ConnectOptions names the connection after the service and keeps it
// reconnecting for the life of the process.
func ConnectOptions(cfg transport.Config) []nc.Option {
	return []nc.Option{
		nc.Name(cfg.GetServiceName()),
		nc.Timeout(timeout(cfg)),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(reconnectWait),
		nc.RetryOnFailedConnect(true),
	}
}

func timeout(cfg transport.Config) time.Duration {
	if d := cfg.GetBrokerRequestTimeout(); d > 0 {
		return d
	}
	return defaultTimeout
}
