package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel     zapcore.Level
	Energyhive   EnergyhiveConfig   `mapstructure:"energyhive"`
	Meters       []MeterConfig      `mapstructure:"meters"`
	Poller       PollerConfig       `mapstructure:"poller"`
	State        StateConfig        `mapstructure:"state"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	Availability AvailabilityConfig `mapstructure:"availability"`
	InfluxDB     InfluxDBConfig     `mapstructure:"influxdb"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Port         uint               `mapstructure:"port"`
	HttpLog      bool               `mapstructure:"http_log"`
}

type EnergyhiveConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	ApiKey               string `mapstructure:"apikey"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
	DeviceTypeMarker     string `mapstructure:"device_type_marker"`
}

// MeterConfig binds one Energyhive device (sid) to a meter. ApiKey overrides
// the global key when set.
type MeterConfig struct {
	Id       string
	Name     string
	DeviceId string `mapstructure:"device_id"`
	ApiKey   string `mapstructure:"apikey"`
}

type PollerConfig struct {
	IntervalMillis         uint32 `mapstructure:"interval_millis"`
	GracePeriodMillis      uint32 `mapstructure:"grace_period_millis"`
	ResyncThresholdSeconds uint32 `mapstructure:"resync_threshold_seconds"`
	Autostart              bool   `mapstructure:"autostart"`
}

type StateConfig struct {
	File string `mapstructure:"file"`
}

type AvailabilityConfig struct {
	Cron string `mapstructure:"cron"`
}

type InfluxDBConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (m MeterConfig) EffectiveApiKey(global string) string {
	if m.ApiKey != "" {
		return m.ApiKey
	}
	return global
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// CheckMeterId normalizes a meter id so it can be used in MQTT topics and
// HA unique ids.
func CheckMeterId(id string) (string, error) {
	lower, err := CheckMQTTTopic(id)
	if err != nil {
		return "", errors.New("invalid meter id. can only contain letters, numbers and underscores")
	}
	return lower, nil
}

// Validate normalizes meter ids and checks the poller bounds.
func (cfg *Config) Validate() error {
	if len(cfg.Meters) == 0 {
		return errors.New("at least one meter must be configured")
	}
	seen := map[string]bool{}
	for i := range cfg.Meters {
		id, err := CheckMeterId(cfg.Meters[i].Id)
		if err != nil {
			return fmt.Errorf("meters[%d]: %w", i, err)
		}
		if seen[id] {
			return fmt.Errorf("meters[%d]: duplicated meter id %s", i, id)
		}
		seen[id] = true
		cfg.Meters[i].Id = id
		if cfg.Meters[i].DeviceId == "" {
			return fmt.Errorf("meters[%d]: device_id is required", i)
		}
	}
	if cfg.Poller.IntervalMillis < 1000 {
		return errors.New("config param poller.interval_millis should be >= 1000")
	}
	if cfg.Poller.GracePeriodMillis >= cfg.Poller.IntervalMillis {
		return errors.New("config param poller.grace_period_millis must be < poller.interval_millis")
	}
	return nil
}
