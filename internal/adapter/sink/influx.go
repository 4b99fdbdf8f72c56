package sink

import (
	"context"
	"errors"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	INFLUX_MEASUREMENT = "meter_energy"
	SINK_NAME_INFLUX   = "influxdb"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxSink struct {
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
}

func NewInfluxSink(cfg config.InfluxDBConfig, logger *zap.Logger) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, errors.New("influxdb url and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger.With(zap.String("sink", SINK_NAME_INFLUX)),
	}, nil
}

func (s *InfluxSink) Name() string {
	return SINK_NAME_INFLUX
}

func (s *InfluxSink) WriteSample(ctx context.Context, event domain.MeterSampleEvent) error {
	point := SampleToPoint(event)
	if err := s.writer.WritePoint(ctx, point); err != nil {
		s.logger.Warn("influx: write failed", zap.String("meter", event.MeterId), zap.Error(err))
		return err
	}
	return nil
}

func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// SampleToPoint renders one tick, timestamped at the end of its window.
func SampleToPoint(event domain.MeterSampleEvent) *write.Point {
	tags := map[string]string{
		"meter":     event.MeterId,
		"device_id": event.DeviceId,
	}
	fields := map[string]interface{}{
		"accumulated_kwh": event.State.AccumulatedEnergy,
		"sample_kwh":      event.Contribution,
		"known":           event.Sample.Known,
		"failed":          event.Err != nil,
	}
	return influxdb2.NewPoint(INFLUX_MEASUREMENT, tags, fields, windowTime(event))
}

var _ port.SampleSink = (*InfluxSink)(nil)
