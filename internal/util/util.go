package util

import (
	"github.com/berfenger/energyhive2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Energyhive: config.EnergyhiveConfig{
			BaseURL:              "http://-.-.-.-",
			ApiKey:               "test_apikey",
			RequestTimeoutMillis: 1000,
			DeviceTypeMarker:     "PWER",
		},
		Meters: []config.MeterConfig{
			{
				Id:       "kitchen",
				Name:     "Kitchen",
				DeviceId: "4711",
			},
		},
		Poller: config.PollerConfig{
			IntervalMillis:         100,
			GracePeriodMillis:      10,
			ResyncThresholdSeconds: 60,
			Autostart:              false,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "energyhive",
		},
		Port: 8080,
	}
}
