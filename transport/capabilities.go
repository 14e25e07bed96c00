package transport

// Capabilities describes what a broker backend guarantees for records.
type Capabilities struct {
	Name string

	// SupportsOrdering means messages on one topic arrive in publish order.
	SupportsOrdering bool
	// SupportsPartitioning means a message key pins related messages to one
	// ordered partition.
	SupportsPartitioning bool
	// SupportsAck means the publisher learns whether the broker stored the
	// message.
	SupportsAck bool
	// SupportsTracing means metadata headers travel with the message.
	SupportsTracing bool
	SupportsBatching bool

	// MaxMessageSize in bytes, 0 when unknown.
	MaxMessageSize int64
}

// PreservesKeyOrder reports whether records sharing a correlation id reach
// consumers in the order they were published.
func (c Capabilities) PreservesKeyOrder() bool {
	return c.SupportsOrdering || c.SupportsPartitioning
}

// Fits reports whether a payload of size bytes is within the broker limit.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsTracing:  true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsPartitioning: true,
		SupportsAck:          true,
		SupportsTracing:      true,
		SupportsBatching:     true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsTracing:  true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	AWSCapabilities = Capabilities{
		Name:            "aws",
		SupportsAck:     true,
		SupportsTracing: true,
		MaxMessageSize:  262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsAck:     true,
		SupportsTracing: true,
	}
)
