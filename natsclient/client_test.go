package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)

	c, err := NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)
	assert.Equal(t, "nats://127.0.0.1:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
}

func TestOptions(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:4222",
		WithMaxReconnects(5),
		WithReconnectWait(time.Second),
		WithTimeout(2*time.Second),
		WithClientName("test-collector"),
	)
	require.NoError(t, err)
	assert.Equal(t, 5, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.Equal(t, 2*time.Second, c.timeout)
	assert.Equal(t, "test-collector", c.clientName)
}

func TestPublishWithoutConnection(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	err = c.Publish("telemetry.event", []byte("{}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribeWithoutConnection(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), "telemetry.>", func(context.Context, []byte) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIdempotent(t *testing.T) {
	c, err := NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}
