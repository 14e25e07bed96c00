// Package transport builds the watermill publisher and subscriber for the
// configured broker. Each backend lives in its own sub-package and registers
// a Builder with the registry; import transport/transports to get them all.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Role selects which halves of a transport a builder must create.
type Role int

const (
	// RolePublish builds the publisher used to ship records.
	RolePublish Role = 1 << iota
	// RoleSubscribe builds the subscriber used to read records back.
	RoleSubscribe

	RoleBoth = RolePublish | RoleSubscribe
)

func (r Role) Publishes() bool  { return r&RolePublish != 0 }
func (r Role) Subscribes() bool { return r&RoleSubscribe != 0 }

// Transport holds whichever halves were requested. The other is nil.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves and joins their errors.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.Subscriber != nil {
		if err := t.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, role Role, logger watermill.LoggerAdapter) (Transport, error)

// Config exposes the settings transports read, so transport packages do not
// depend on the full config package.
type Config interface {
	// GetBroker returns the registered transport name.
	GetBroker() string
	GetServiceName() string
	// GetBrokerRequestTimeout bounds a single broker round trip.
	GetBrokerRequestTimeout() time.Duration

	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}
