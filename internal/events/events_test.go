package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_LocalDeliveryWithoutClient(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	var received []Event
	require.NoError(t, bus.Subscribe(INTAKE_CHANNEL, func(event Event) error {
		received = append(received, event)
		return nil
	}))
	require.NoError(t, bus.Subscribe(INTAKE_CHANNEL, func(event Event) error {
		return errors.New("second handler fails")
	}))

	require.NoError(t, bus.PublishSession("session-1", INTAKE_PROGRESS, map[string]any{"progress": 10}))
	require.NoError(t, bus.PublishSession("session-1", INTAKE_PROGRESS, map[string]any{"progress": 25}))

	require.Len(t, received, 2)
	assert.Equal(t, INTAKE_PROGRESS, received[0].Type)
	assert.Equal(t, INTAKE_CHANNEL, received[0].Channel)
	assert.Equal(t, "session-1", received[0].SessionID)
	assert.NotEmpty(t, received[0].ID)
	assert.False(t, received[0].Timestamp.IsZero())
	assert.Equal(t, 25, received[1].Data["progress"])
}

func TestEventBus_OtherChannelsIgnored(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	called := false
	require.NoError(t, bus.Subscribe("other", func(event Event) error {
		called = true
		return nil
	}))

	require.NoError(t, bus.PublishSession("session-1", INTAKE_BATCH, nil))
	assert.False(t, called)
}

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "intake", INTAKE_CHANNEL.String())
}
