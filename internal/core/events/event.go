package events

import (
	. "github.com/berfenger/elvia2mqtt/internal/core/domain"
)

// RuntimeStateToUpdateEvents returns the state of every sensor in
// EntrySensors, in the same order.
func RuntimeStateToUpdateEvents(entryDevice Device, state *RuntimeState) []SensorUpdateEvent {
	var events []SensorUpdateEvent

	var visible []string
	for _, mp := range meteringPoints(state) {
		if mp.Production && !state.IncludeProductionToGrid {
			continue
		}
		visible = append(visible, mp.MeteringPointId)
	}

	// Metering point count
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorId(entryDevice, SENSOR_ID_METER_COUNT),
		},
		Value:    float64(len(visible)),
		Decimals: 0,
	})

	// Metering points
	for _, mp := range meteringPoints(state) {
		if mp.Production && !state.IncludeProductionToGrid {
			continue
		}
		value := METERING_POINT_CONSUMPTION
		if mp.Production {
			value = METERING_POINT_PRODUCTION
		}
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SensorId(entryDevice, SENSOR_ID_METERING_POINT+"_"+sanitizeId(mp.MeteringPointId)),
			},
			Value: value,
		})
	}

	// Feature flags
	flags := state.FeatureFlags()
	for _, flag := range []struct {
		id    string
		value bool
	}{
		{SENSOR_ID_FLAG_PRODUCTION_TO_GRID, flags.IncludeProductionToGrid},
		{SENSOR_ID_FLAG_COST_PERIOD, flags.CostPeriod},
		{SENSOR_ID_FLAG_MAX_HOURS, flags.MaxHours},
		{SENSOR_ID_FLAG_METER_READING, flags.MeterReading},
	} {
		events = append(events, BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SensorId(entryDevice, flag.id),
			},
			Value: flag.value,
		})
	}

	return events
}
