package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckMQTTTopic(t *testing.T) {

	assert := assert.New(t)

	topic, err := CheckMQTTTopic("EnergyHive_1")
	assert.NoError(err)
	assert.Equal("energyhive_1", topic)

	_, err = CheckMQTTTopic("energy/hive")
	assert.Error(err, "slashes are not allowed")

	_, err = CheckMQTTTopic("")
	assert.Error(err, "empty topic")
}

func TestCheckMeterId(t *testing.T) {

	assert := assert.New(t)

	id, err := CheckMeterId("Kitchen")
	assert.NoError(err)
	assert.Equal("kitchen", id)

	_, err = CheckMeterId("kitchen meter")
	assert.Error(err)
}

func TestEffectiveApiKey(t *testing.T) {

	assert := assert.New(t)

	m := MeterConfig{Id: "a"}
	assert.Equal("global", m.EffectiveApiKey("global"))

	m.ApiKey = "own"
	assert.Equal("own", m.EffectiveApiKey("global"))
}

func TestValidate(t *testing.T) {

	assert := assert.New(t)

	valid := func() Config {
		return Config{
			Meters: []MeterConfig{{Id: "Kitchen", DeviceId: "4711"}},
			Poller: PollerConfig{IntervalMillis: 60000, GracePeriodMillis: 5000},
		}
	}

	cfg := valid()
	assert.NoError(cfg.Validate())
	assert.Equal("kitchen", cfg.Meters[0].Id)

	cfg = valid()
	cfg.Meters = nil
	assert.Error(cfg.Validate())

	cfg = valid()
	cfg.Meters = append(cfg.Meters, MeterConfig{Id: "kitchen", DeviceId: "4712"})
	assert.Error(cfg.Validate(), "duplicated ids after normalization")

	cfg = valid()
	cfg.Meters[0].DeviceId = ""
	assert.Error(cfg.Validate())

	cfg = valid()
	cfg.Poller.IntervalMillis = 500
	assert.Error(cfg.Validate())

	cfg = valid()
	cfg.Poller.GracePeriodMillis = 60000
	assert.Error(cfg.Validate())
}
