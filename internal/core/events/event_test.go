package events

import (
	"testing"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(includeProduction bool) *domain.RuntimeState {
	input := domain.DefaultUserInput()
	input.Token = "abc"
	input.IncludeProductionToGrid = includeProduction
	state := domain.NewRuntimeState(nil)
	state.SetEntryData(input)
	state.Meters = &elvia.MetersResult{
		StatusCode: 200,
		MeteringPoints: []elvia.MeteringPoint{
			{MeteringPointId: "7070575000-01"},
			{MeteringPointId: "7070575000-02", Production: true},
		},
	}
	return state
}

func TestEntrySensorsMatchEvents(t *testing.T) {

	require := require.New(t)

	device := EntryDevice(domain.ConfigEntry{EntryId: "entry-1", Title: "elvia"})
	state := testState(true)

	sensors := EntrySensors(device, state)
	evs := RuntimeStateToUpdateEvents(device, state)
	require.Len(evs, len(sensors))
	for i := range sensors {
		require.Equal(sensors[i].Id, evs[i].SensorId(), "sensor %d", i)
	}

	require.Equal(device, sensors[0].Device, "first sensor carries the full device")
	require.Equal(IdDevice(device), sensors[1].Device)
	require.Equal(device.Id+"_metering_point_7070575000_01", sensors[1].Id)

	count, ok := evs[0].(domain.FloatSensorUpdateEvent)
	require.True(ok)
	require.Equal(2.0, count.Value)

	production, ok := evs[2].(domain.TextSensorUpdateEvent)
	require.True(ok)
	require.Equal(METERING_POINT_PRODUCTION, production.Value)
}

func TestProductionPointsHiddenByDefault(t *testing.T) {

	device := EntryDevice(domain.ConfigEntry{EntryId: "entry-1", Title: "elvia"})
	state := testState(false)

	sensors := EntrySensors(device, state)
	// count + one consumption point + four flags
	assert.Len(t, sensors, 6)

	count := RuntimeStateToUpdateEvents(device, state)[0].(domain.FloatSensorUpdateEvent)
	assert.Equal(t, 1.0, count.Value)
}

func TestDevicesAreStable(t *testing.T) {

	a := EntryDevice(domain.ConfigEntry{EntryId: "entry-1", Title: "elvia"})
	b := EntryDevice(domain.ConfigEntry{EntryId: "entry-1", Title: "elvia"})
	c := EntryDevice(domain.ConfigEntry{EntryId: "entry-2", Title: "elvia"})
	assert.Equal(t, a.Id, b.Id)
	assert.NotEqual(t, a.Id, c.Id)
	assert.Equal(t, BridgeDevice("elvia").Id, BridgeDevice("elvia").Id)
}
