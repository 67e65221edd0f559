package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCoordinator(client *stubMeterClient, platform *stubPlatform) (*Coordinator, *stubFactory) {
	factory := &stubFactory{client: client}
	return NewCoordinator(factory.New, platform, zap.Must(zap.NewDevelopment())), factory
}

func TestSetupStoresGlobalConfig(t *testing.T) {

	platform := &stubPlatform{}
	coordinator, _ := newTestCoordinator(&stubMeterClient{result: metersResult(200)}, platform)

	assert.True(t, coordinator.Setup(context.Background(), map[string]any{"elvia": nil}))

	ok, err := coordinator.SetupEntry(context.Background(), testEntry("abc"))
	require.NoError(t, err)
	require.True(t, ok)

	state, found := coordinator.State("entry-1")
	require.True(t, found)
	assert.Equal(t, map[string]any{"elvia": nil}, state.GlobalConfig)
}

func TestSetupEntrySuccess(t *testing.T) {

	require := require.New(t)

	platform := &stubPlatform{}
	coordinator, factory := newTestCoordinator(&stubMeterClient{result: metersResult(200, "m1", "m2")}, platform)

	entry := testEntry("abc")
	entry.Data.MeterReading = true
	ok, err := coordinator.SetupEntry(context.Background(), entry)
	require.NoError(err)
	require.True(ok)

	require.Equal([]string{"abc"}, factory.tokens, "client built from entry token")
	require.Equal([]string{"entry-1"}, platform.forwarded)
	require.True(platform.readyAtSetup, "state complete before forwarding")
	require.Contains(platform.keysAtSetup, domain.KEY_TOKEN)
	require.Contains(platform.keysAtSetup, domain.KEY_MAX_HOURS)
	require.Contains(platform.keysAtSetup, domain.KEY_METER)

	state, found := coordinator.State("entry-1")
	require.True(found)
	require.Equal("abc", state.Token)
	require.True(state.MeterReading)
	require.True(state.MaxHours)
	require.Len(state.Meters.MeteringPoints, 2)
}

func TestSetupEntryTimeoutIsNotReady(t *testing.T) {

	require := require.New(t)

	platform := &stubPlatform{}
	coordinator, _ := newTestCoordinator(&stubMeterClient{
		err: fmt.Errorf("%w: deadline", elvia.ErrTimeout),
	}, platform)

	ok, err := coordinator.SetupEntry(context.Background(), testEntry("abc"))
	require.NoError(err, "timeout is reported, not raised")
	require.False(ok)
	require.Empty(platform.forwarded)

	state, found := coordinator.State("entry-1")
	require.True(found)
	require.Nil(state.Meters, "no snapshot written")
	require.Equal("abc", state.Token)
}

func TestSetupEntryOtherErrorPropagates(t *testing.T) {

	platform := &stubPlatform{}
	boom := errors.New("boom")
	coordinator, _ := newTestCoordinator(&stubMeterClient{err: boom}, platform)

	ok, err := coordinator.SetupEntry(context.Background(), testEntry("abc"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, platform.forwarded)
}

func TestSetupEntryRejectedTokenAborts(t *testing.T) {

	platform := &stubPlatform{}
	coordinator, _ := newTestCoordinator(&stubMeterClient{result: metersResult(401)}, platform)

	ok, err := coordinator.SetupEntry(context.Background(), testEntry("revoked"))
	assert.False(t, ok)
	assert.Equal(t, domain.KindAuthentication, domain.KindOf(err))
	assert.Empty(t, platform.forwarded, "no partial state published")

	state, _ := coordinator.State("entry-1")
	assert.Nil(t, state.Meters)
}

func TestSetupEntryForwardError(t *testing.T) {

	platform := &stubPlatform{forwardErr: errors.New("mqtt down")}
	coordinator, _ := newTestCoordinator(&stubMeterClient{result: metersResult(200, "m1")}, platform)

	ok, err := coordinator.SetupEntry(context.Background(), testEntry("abc"))
	assert.False(t, ok)
	assert.ErrorContains(t, err, "mqtt down")
}

func TestUnloadEntryDelegates(t *testing.T) {

	for _, expected := range []bool{true, false} {
		platform := &stubPlatform{unloadOk: expected}
		coordinator, _ := newTestCoordinator(&stubMeterClient{}, platform)

		ok, err := coordinator.UnloadEntry(context.Background(), testEntry("abc"))
		assert.NoError(t, err)
		assert.Equal(t, expected, ok, "platform result returned unchanged")
		assert.Equal(t, []string{"entry-1"}, platform.unloaded)
	}
}

func TestForget(t *testing.T) {

	platform := &stubPlatform{}
	coordinator, _ := newTestCoordinator(&stubMeterClient{result: metersResult(200)}, platform)

	_, err := coordinator.SetupEntry(context.Background(), testEntry("abc"))
	require.NoError(t, err)

	coordinator.Forget("entry-1")
	_, found := coordinator.State("entry-1")
	assert.False(t, found)
}
