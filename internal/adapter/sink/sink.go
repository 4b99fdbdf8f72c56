package sink

import (
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// SinksFromConfig builds every sink that has enough configuration to run.
func SinksFromConfig(cfg *config.Config, logger *zap.Logger) ([]port.SampleSink, error) {
	var sinks []port.SampleSink
	if cfg.InfluxDB.URL != "" {
		influx, err := NewInfluxSink(cfg.InfluxDB, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, influx)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := NewKafkaSink(cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafka)
	}
	return sinks, nil
}

func windowTime(event domain.MeterSampleEvent) time.Time {
	if event.Window.IsZero() {
		return event.State.LastUpdated
	}
	return time.Unix(event.Window.End, 0).UTC()
}
