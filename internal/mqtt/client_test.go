package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/kitchen_polling/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "kitchen_polling", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	r := switchCommandExtractor("loremTopic")
	for _, topic := range []string{
		"loremTopic/switch/my_device/state",
		"other/loremTopic/switch/my_device/command",
		"loremTopic/number/my_device/set",
	} {
		matches := r.FindAllStringSubmatch(topic, 1)
		assert.Equal(len(matches), 0, topic)
	}
}

func TestSwitchCommandPayload(t *testing.T) {

	r := switchCommandExtractor("base")

	cmd, err := parseSwitchCommand(r, "base/switch/kitchen_polling/command", []byte(" ON "))
	require.NoError(t, err)
	assert.Equal(t, "kitchen_polling", cmd.DeviceId)
	assert.Equal(t, MQTT_PAYLOAD_ON, cmd.Payload)

	_, err = parseSwitchCommand(r, "base/switch/kitchen_polling/command", []byte("maybe"))
	assert.Error(t, err)

	_, err = parseSwitchCommand(r, "base/sensor/kitchen_energy/state", []byte("on"))
	assert.Error(t, err)
}

func TestFormatters(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("12.346", FormatFloat(12.3456, 3))
	assert.Equal("0.000", FormatFloat(0, 3))
	assert.Equal("on", FormatBool(true))
	assert.Equal("off", FormatBool(false))
}
