package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SENSOR_SUFFIX_ENERGY         = "energy"
	SENSOR_SUFFIX_LAST_SAMPLE    = "last_sample"
	SENSOR_SUFFIX_AVAILABLE      = "available"
	SWITCH_SUFFIX_POLLING        = "polling"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	ENTITY_CLASS_CONFIG          = "config"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	UNIT_KWH                     = "kWh"
)

func MeterSensorId(meterId, suffix string) string {
	return fmt.Sprintf("%s_%s", meterId, suffix)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("energyhive_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "Efergy",
		Model:        "Energyhive",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Energyhive %s", md5HashShort(baseTopic)),
	}
}

func MeterDevice(bridge Device, meterId, name string) Device {
	if name == "" {
		name = meterId
	}
	return Device{
		Id:           fmt.Sprintf("ehv_meter_%s", md5HashShort(bridge.Id+"/"+meterId)),
		Manufacturer: "Efergy",
		Model:        "Energyhive meter",
		Name:         name,
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func MeterSensors(meterDevice Device, meterId string) []GenericSensor {

	var sensors []GenericSensor

	// Accumulated energy
	energyId := MeterSensorId(meterId, SENSOR_SUFFIX_ENERGY)
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                energyId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: UNIT_KWH,
		UniqueId:          uniqueId(meterDevice.Id, energyId),
	})
	// Last minute sample
	sampleId := MeterSensorId(meterId, SENSOR_SUFFIX_LAST_SAMPLE)
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                sampleId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Last minute energy",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: UNIT_KWH,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(meterDevice.Id, sampleId),
	})
	// Device listed by provider
	availableId := MeterSensorId(meterId, SENSOR_SUFFIX_AVAILABLE)
	sensors = append(sensors, GenericSensor{
		Device:         meterDevice,
		Id:             availableId,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Device available",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(meterDevice.Id, availableId),
	})

	return sensors
}

func MeterSwitches(meterDevice Device, meterId string) []GenericSwitch {
	pollingId := MeterSensorId(meterId, SWITCH_SUFFIX_POLLING)
	return []GenericSwitch{{
		Device:   meterDevice,
		Id:       pollingId,
		Name:     "Polling",
		UniqueId: uniqueId(meterDevice.Id, pollingId),
		Icon:     "mdi:timer-sync",
	}}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
