package http

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/reportflow/transport"
	"github.com/drblury/reportflow/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	assert.Equal(t, Capabilities(), transport.CapabilitiesOf(TransportName))
}

func TestTopicURLMarshaler(t *testing.T) {
	msg := message.NewMessage("id-1", []byte(`{"type":"Event"}`))

	req, err := TopicURLMarshaler("http://collector:8081/records/")("event-logs", msg)
	require.NoError(t, err)

	assert.Equal(t, "http://collector:8081/records/event-logs", req.URL.String())
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Event"}`, string(body))
}

func TestBuildPublishRoleSkipsServer(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = originalPub, originalSub }()

	pub := &transporttest.Publisher{}
	PublisherFactory = func(cfg watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		require.NotNil(t, cfg.Client)
		assert.Equal(t, 2*time.Second, cfg.Client.Timeout)
		return pub, nil
	}
	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		t.Fatal("subscriber must not be built for the publish role")
		return nil, nil
	}

	cfg := &transporttest.Config{HTTPPublisherURL: "http://collector/", RequestTimeout: 2 * time.Second}
	tr, err := Build(context.Background(), cfg, transport.RolePublish, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Nil(t, tr.Subscriber)
}

func TestBuildSubscribeRole(t *testing.T) {
	originalSub := SubscriberFactory
	defer func() { SubscriberFactory = originalSub }()

	sub := &transporttest.Subscriber{}
	SubscriberFactory = func(addr string, _ watermillhttp.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, ":8081", addr)
		return sub, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{HTTPServerAddress: ":8081"}, transport.RoleSubscribe, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, sub, tr.Subscriber)
}

func TestBuildSubscriberErrorClosesPublisher(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = originalPub, originalSub }()

	pub := &transporttest.Publisher{}
	PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) { return pub, nil }
	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, errors.New("address in use")
	}

	_, err := Build(context.Background(), &transporttest.Config{}, transport.RoleBoth, watermill.NopLogger{})
	assert.ErrorContains(t, err, "address in use")
	assert.True(t, pub.Closed)
}
