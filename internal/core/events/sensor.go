package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	. "github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE            = "bridge"
	SENSOR_ID_METER_COUNT             = "meter_count"
	SENSOR_ID_METERING_POINT          = "metering_point"
	SENSOR_ID_FLAG_PRODUCTION_TO_GRID = "include_production_to_grid"
	SENSOR_ID_FLAG_COST_PERIOD        = "cost_period"
	SENSOR_ID_FLAG_MAX_HOURS          = "max_hours"
	SENSOR_ID_FLAG_METER_READING      = "meter_reading"
	STATE_CLASS_MEASUREMENT           = "measurement"
	DEVICE_CLASS_CONNECTIVITY         = "connectivity"
	DEVICE_CLASS_ENUM                 = "enum"
	ENTITY_CLASS_DIAGNOSTIC           = "diagnostic"
	SENSOR_TYPE_SENSOR                = "sensor"
	SENSOR_TYPE_BINARY                = "binary_sensor"
	METERING_POINT_PRODUCTION         = "production"
	METERING_POINT_CONSUMPTION        = "consumption"
)

var invalidIdChars = regexp.MustCompile("[^a-z0-9_]+")

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("elvia_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "Elvia",
		Model:        "elvia2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Elvia bridge %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// EntryDevice is the Home Assistant device that groups the sensors of one
// config entry.
func EntryDevice(entry ConfigEntry) Device {
	return Device{
		Id:           fmt.Sprintf("elvia_%s", md5HashShort(entry.EntryId)),
		Manufacturer: "Elvia",
		Model:        "Meter values API",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("%s %s", entry.Title, md5HashShort(entry.EntryId)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// EntrySensors lists the entities announced for an entry. The first sensor
// carries the full device, the rest only reference it.
func EntrySensors(entryDevice Device, state *RuntimeState) []GenericSensor {

	var sensors []GenericSensor
	ref := IdDevice(entryDevice)

	// Metering point count
	sensors = append(sensors, GenericSensor{
		Device:     entryDevice,
		Id:         SensorId(entryDevice, SENSOR_ID_METER_COUNT),
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Metering points",
		StateClass: STATE_CLASS_MEASUREMENT,
		Icon:       "mdi:counter",
		UniqueId:   uniqueId(entryDevice.Id, SENSOR_ID_METER_COUNT),
	})

	// Metering points
	for _, mp := range meteringPoints(state) {
		if mp.Production && !state.IncludeProductionToGrid {
			continue
		}
		id := SENSOR_ID_METERING_POINT + "_" + sanitizeId(mp.MeteringPointId)
		sensors = append(sensors, GenericSensor{
			Device:      ref,
			Id:          SensorId(entryDevice, id),
			SensorType:  SENSOR_TYPE_SENSOR,
			Name:        fmt.Sprintf("Metering point %s", mp.MeteringPointId),
			DeviceClass: DEVICE_CLASS_ENUM,
			Icon:        "mdi:meter-electric",
			UniqueId:    uniqueId(entryDevice.Id, id),
		})
	}

	// Feature flags
	disabled := false
	for _, flag := range []struct {
		id   string
		name string
	}{
		{SENSOR_ID_FLAG_PRODUCTION_TO_GRID, "Include production to grid"},
		{SENSOR_ID_FLAG_COST_PERIOD, "Cost period"},
		{SENSOR_ID_FLAG_MAX_HOURS, "Max hours"},
		{SENSOR_ID_FLAG_METER_READING, "Meter reading"},
	} {
		sensors = append(sensors, GenericSensor{
			Device:           ref,
			Id:               SensorId(entryDevice, flag.id),
			SensorType:       SENSOR_TYPE_BINARY,
			Name:             flag.name,
			EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
			EnabledByDefault: &disabled,
			UniqueId:         uniqueId(entryDevice.Id, flag.id),
		})
	}

	return sensors
}

// SensorId scopes a sensor id to its device, so that state topics of two
// entries never collide.
func SensorId(device Device, id string) string {
	return fmt.Sprintf("%s_%s", device.Id, id)
}

func meteringPoints(state *RuntimeState) []elvia.MeteringPoint {
	if state == nil || state.Meters == nil {
		return nil
	}
	return state.Meters.MeteringPoints
}

func sanitizeId(id string) string {
	return invalidIdChars.ReplaceAllString(strings.ToLower(id), "_")
}

func uniqueId(deviceId, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[:8]
}
