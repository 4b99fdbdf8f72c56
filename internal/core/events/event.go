package events

import (
	. "github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/service"
)

func MeterStateToUpdateEvents(meterId string, state MeterState) []any {
	var events []any

	// Accumulated energy
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: MeterSensorId(meterId, SENSOR_SUFFIX_ENERGY),
		},
		Value:    state.AccumulatedEnergy,
		Decimals: 3,
	})
	// Last minute, unknown samples are reported as zero
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: MeterSensorId(meterId, SENSOR_SUFFIX_LAST_SAMPLE),
		},
		Value:    service.SampleContribution(state.LastSample),
		Decimals: 5,
	})

	return events
}

func MeterPollingSwitchUpdateEvent(meterId string, running bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: MeterSensorId(meterId, SWITCH_SUFFIX_POLLING),
		},
		Value: running,
	}
}

func MeterAvailabilityUpdateEvent(meterId string, available bool) any {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: MeterSensorId(meterId, SENSOR_SUFFIX_AVAILABLE),
		},
		Value: available,
	}
}
