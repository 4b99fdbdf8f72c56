package mqtt

import (
	"testing"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func testClient() *MQTTClient {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "energyhive",
		},
	}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, nil)
}

func TestMeterSensorDiscovery(t *testing.T) {

	assert := assert.New(t)

	client := testClient()
	bridge := domain.BridgeDevice("energyhive")
	meter := domain.MeterDevice(bridge, "kitchen", "Kitchen")
	sensors := domain.MeterSensors(meter, "kitchen")

	energy := GenericSensorToHADiscoveryMessage(client, sensors[0])
	assert.Equal("energyhive/sensor/kitchen_energy/state", energy.StateTopic)
	assert.Equal("energyhive/bridge/state", energy.AvTopic)
	assert.Equal("kWh", energy.UnitOfMeasurement)
	assert.Equal("total_increasing", energy.StateClass)
	assert.Equal([]string{meter.Id}, energy.Device.Id)
	assert.Equal(bridge.Id, energy.Device.ViaDevice)
	assert.Equal("homeassistant/sensor/"+meter.Id+"/kitchen_energy/config", HADiscoverySensorTopic(client, sensors[0]))

	available := GenericSensorToHADiscoveryMessage(client, sensors[2])
	assert.Equal("energyhive/binary_sensor/kitchen_available/state", available.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ON, available.PayloadOn)
	assert.Equal(MQTT_PAYLOAD_OFF, available.PayloadOff)
}

func TestBridgeAndSwitchDiscovery(t *testing.T) {

	assert := assert.New(t)

	client := testClient()
	bridge := domain.BridgeDevice("energyhive")

	state := GenericSensorToHADiscoveryMessage(client, domain.BridgeSensors(bridge)[0])
	assert.Equal("energyhive/bridge/state", state.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, state.PayloadOn)

	meter := domain.MeterDevice(bridge, "kitchen", "")
	sw := domain.MeterSwitches(meter, "kitchen")[0]
	msg := GenericSwitchToHADiscoveryMessage(client, sw)
	assert.Equal("energyhive/switch/kitchen_polling/state", msg.StateTopic)
	assert.Equal("energyhive/switch/kitchen_polling/command", msg.CommandTopic)
	assert.Equal("homeassistant/switch/"+meter.Id+"/kitchen_polling/config", HADiscoverySwitchTopic(client, sw))
	assert.Equal("kitchen", meter.Name)
}
