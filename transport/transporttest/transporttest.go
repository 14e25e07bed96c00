// Package transporttest provides a settable transport.Config and recording
// watermill fakes for transport tests.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Config implements transport.Config from plain fields.
type Config struct {
	Broker             string
	ServiceName        string
	RequestTimeout     time.Duration
	KafkaBrokers       []string
	KafkaClientID      string
	KafkaConsumerGroup string
	RabbitMQURL        string
	NATSURL            string
	HTTPServerAddress  string
	HTTPPublisherURL   string
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

func (c *Config) GetBroker() string                      { return c.Broker }
func (c *Config) GetServiceName() string                 { return c.ServiceName }
func (c *Config) GetBrokerRequestTimeout() time.Duration { return c.RequestTimeout }
func (c *Config) GetKafkaBrokers() []string              { return c.KafkaBrokers }
func (c *Config) GetKafkaClientID() string               { return c.KafkaClientID }
func (c *Config) GetKafkaConsumerGroup() string          { return c.KafkaConsumerGroup }
func (c *Config) GetRabbitMQURL() string                 { return c.RabbitMQURL }
func (c *Config) GetNATSURL() string                     { return c.NATSURL }
func (c *Config) GetHTTPServerAddress() string           { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string            { return c.HTTPPublisherURL }
func (c *Config) GetAWSRegion() string                   { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string                { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string              { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string          { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string                 { return c.AWSEndpoint }

// Publisher records every published message.
type Publisher struct {
	mu       sync.Mutex
	Messages map[string][]*message.Message
	Err      error
	Closed   bool
}

func (p *Publisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return errors.New("publisher closed")
	}
	if p.Err != nil {
		return p.Err
	}
	if p.Messages == nil {
		p.Messages = make(map[string][]*message.Message)
	}
	p.Messages[topic] = append(p.Messages[topic], msgs...)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Sent returns a copy of the messages published to topic.
func (p *Publisher) Sent(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.Messages[topic]...)
}

// Subscriber hands out one never-closing channel per Subscribe call.
type Subscriber struct {
	mu     sync.Mutex
	Topics []string
	Closed bool
}

func (s *Subscriber) Subscribe(_ context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Topics = append(s.Topics, topic)
	return make(chan *message.Message), nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
