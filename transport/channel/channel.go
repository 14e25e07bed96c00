// Package channel keeps records in process on a watermill GoChannel. It backs
// local development and tests; records are lost when the process exits.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/reportflow/transport"
)

const (
	TransportName = "channel"

	outputBuffer = 256
)

// Factory is swapped in tests.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds the channel transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.ChannelCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// Build returns both halves of one GoChannel when RoleBoth is requested, so a
// subscriber in the same process sees what the publisher sends.
func Build(_ context.Context, _ transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: outputBuffer}, logger)

	var t transport.Transport
	if role.Publishes() {
		t.Publisher = pub
	}
	if role.Subscribes() {
		t.Subscriber = sub
	}
	return t, nil
}
