// Package http forwards records as HTTP POSTs to <publisher url><topic>. The
// subscribe role runs a watermill HTTP server that accepts those POSTs.
package http

import (
	"context"
	nethttp "net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/reportflow/transport"
)

const TransportName = "http"

var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	Register()
}

// Register adds the HTTP transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.HTTPCapabilities)
}

func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// Build creates the HTTP publisher and/or subscriber.
func Build(_ context.Context, cfg transport.Config, role transport.Role, logger watermill.LoggerAdapter) (transport.Transport, error) {
	var t transport.Transport

	if role.Publishes() {
		timeout := cfg.GetBrokerRequestTimeout()
		pub, err := PublisherFactory(http.PublisherConfig{
			MarshalMessageFunc: TopicURLMarshaler(cfg.GetHTTPPublisherURL()),
			Client:             &nethttp.Client{Timeout: timeout},
		}, logger)
		if err != nil {
			return transport.Transport{}, err
		}
		t.Publisher = pub
	}

	if role.Subscribes() {
		sub, err := SubscriberFactory(cfg.GetHTTPServerAddress(), http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		}, logger)
		if err != nil {
			if t.Publisher != nil {
				_ = t.Publisher.Close()
			}
			return transport.Transport{}, err
		}
		t.Subscriber = sub
		startServer(sub, logger)
	}
	return t, nil
}

// TopicURLMarshaler posts each message to baseURL with the topic appended.
func TopicURLMarshaler(baseURL string) http.MarshalMessageFunc {
	return func(topic string, msg *message.Message) (*nethttp.Request, error) {
		return http.DefaultMarshalMessageFunc(baseURL+topic, msg)
	}
}

// startServer serves subscriptions once the caller has subscribed; the
// watermill subscriber blocks in StartHTTPServer until closed.
func startServer(sub message.Subscriber, logger watermill.LoggerAdapter) {
	s, ok := sub.(*http.Subscriber)
	if !ok {
		return
	}
	go func() {
		if err := s.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
			logger.Error("HTTP subscriber server stopped", err, nil)
		}
	}()
}
