package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigFromEnv(t *testing.T) {

	// restored after the test, initConfig aliases PORT into it
	t.Setenv("ENERGYHIVE_PORT", "")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENERGYHIVE_DEVICE_ID", "4711")
	t.Setenv("ENERGYHIVE_ENERGYHIVE_APIKEY", "secret")
	t.Setenv("ENERGYHIVE_POLLER_INTERVAL_MILLIS", "120000")
	t.Setenv("ENERGYHIVE_MQTT_BASE_TOPIC", "Energy_Home")
	t.Setenv("ENERGYHIVE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PORT", "9090")

	cfg, err := initConfig()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Energyhive.ApiKey)
	assert.Equal(t, uint32(120000), cfg.Poller.IntervalMillis)
	assert.Equal(t, uint32(5000), cfg.Poller.GracePeriodMillis)
	assert.Equal(t, "energy_home", cfg.MQTT.BaseTopic)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, uint(9090), cfg.Port)
	require.Len(t, cfg.Meters, 1)
	assert.Equal(t, "main", cfg.Meters[0].Id)
	assert.Equal(t, "4711", cfg.Meters[0].DeviceId)
}
