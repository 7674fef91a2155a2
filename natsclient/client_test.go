package natsclient

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/metric"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Nil(t, c.Conn())
}

func TestNewClient_Invalid(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))

	for name, opt := range map[string]Option{
		"negative reconnect wait": WithReconnectWait(-time.Second),
		"zero timeout":            WithTimeout(0),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", opt)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestOptions(t *testing.T) {
	called := false
	m := metric.NewMetrics()
	c, err := NewClient("nats://localhost:4222",
		WithLogger(nil),
		WithMetrics(m),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithPingInterval(time.Minute),
		WithTimeout(2*time.Second),
		WithClientName("editor"),
		WithCredentials("user", "secret"),
		WithToken("tok"),
		WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
		WithReconnectCallback(func() { called = true }),
	)
	require.NoError(t, err)
	assert.NotNil(t, c.logger)
	assert.Same(t, m, c.metrics)
	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.Equal(t, time.Minute, c.pingInterval)
	assert.Equal(t, 2*time.Second, c.timeout)
	assert.Equal(t, "editor", c.clientName)
	assert.Equal(t, "user", c.username)
	assert.Equal(t, "tok", c.token)
	assert.NotNil(t, c.tlsConfig)
	assert.Len(t, c.connectionOptions(), 13, "base options plus user info, token and tls")

	c.onReconnect()
	assert.True(t, called)
}

func TestConnectionStatus_String(t *testing.T) {
	for status, want := range map[ConnectionStatus]string{
		StatusDisconnected:   "disconnected",
		StatusConnecting:     "connecting",
		StatusConnected:      "connected",
		StatusReconnecting:   "reconnecting",
		StatusClosed:         "closed",
		ConnectionStatus(42): "unknown",
	} {
		assert.Equal(t, want, status.String())
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, c.Publish("logs.test", []byte("x")), ErrNotConnected)
	assert.ErrorIs(t, c.Subscribe(ctx, "logs.>", func([]byte) {}), ErrNotConnected)
	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.EnsureKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "graphs"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.IsTransient(err))
}

func TestClient_ConnectCancelled(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:1", WithMaxReconnects(0))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusClosed, c.Status())

	err = c.Connect(context.Background())
	assert.True(t, errors.IsFatal(err))
}
