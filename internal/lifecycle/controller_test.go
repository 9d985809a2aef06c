package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sslproxymanager/core/internal/config"
)

func TestController_StartStop_NoListeners(t *testing.T) {
	c, err := New(config.Config{}, testLogger())
	require.NoError(t, err)

	require.False(t, c.IsRunning())

	require.NoError(t, c.Start(context.Background()))
	require.True(t, c.IsRunning())
	require.False(t, c.IsStarting())

	require.NoError(t, c.Stop(context.Background()))
	require.False(t, c.IsRunning())
}

func TestController_PrometheusGatherer_NilWhenDisabled(t *testing.T) {
	c, err := New(config.Config{}, testLogger())
	require.NoError(t, err)
	require.Nil(t, c.PrometheusGatherer())
}

func TestController_PrometheusGatherer_SetWhenEnabled(t *testing.T) {
	cfg := config.Config{}
	cfg.Metrics.PrometheusEnabled = true

	c, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, c.PrometheusGatherer())

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop(context.Background())

	families, err := c.PrometheusGatherer().Gather()
	require.NoError(t, err)
	require.NotNil(t, families)
}

func TestController_SubscribeReceivesStatusEvents(t *testing.T) {
	c, err := New(config.Config{}, testLogger())
	require.NoError(t, err)

	events, cancel := c.Subscribe(context.Background())
	defer cancel()

	require.NoError(t, c.Start(context.Background()))

	select {
	case evt := <-events:
		require.Equal(t, EventStatus, evt.Type)
	default:
		t.Fatal("expected a status event to be published synchronously on Start")
	}
}
