package actorutil

import (
	"testing"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/mqtt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingSwitchToCommand(t *testing.T) {

	require := require.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "kitchen_polling",
		Command:  "switch",
		Payload:  "on",
	})
	require.NoError(err)
	start, ok := req.(domain.MeterStartRequest)
	require.True(ok)
	require.Equal("kitchen", start.TargetMeter())

	req, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: "my_kitchen_polling",
		Command:  "switch",
		Payload:  "off",
	})
	require.NoError(err)
	stop, ok := req.(domain.MeterStopRequest)
	require.True(ok)
	require.Equal("my_kitchen", stop.TargetMeter())
}

func TestUnknownSwitchIsIgnored(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "kitchen_light", Command: "switch", Payload: "on"})
	assert.NoError(err)
	assert.Nil(req)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "_polling", Command: "switch", Payload: "on"})
	assert.Error(err)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "kitchen_polling", Command: "switch", Payload: "toggle"})
	assert.Error(err)
}
