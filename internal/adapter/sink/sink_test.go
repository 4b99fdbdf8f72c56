package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent() domain.MeterSampleEvent {
	return domain.MeterSampleEvent{
		TickId:       "tick-1",
		MeterId:      "kitchen",
		DeviceId:     "4711",
		Window:       domain.PollWindow{Start: 1700000000, End: 1700000059},
		Sample:       energyhive.Known(30000),
		Contribution: 0.5,
		State:        domain.MeterState{AccumulatedEnergy: 10.5},
	}
}

type recordingPointWriter struct {
	points []*write.Point
	err    error
}

func (w *recordingPointWriter) WritePoint(ctx context.Context, point ...*write.Point) error {
	w.points = append(w.points, point...)
	return w.err
}

func TestInfluxSinkWritesPoint(t *testing.T) {

	require := require.New(t)

	writer := &recordingPointWriter{}
	s := &InfluxSink{writer: writer, logger: zap.NewNop()}

	require.NoError(s.WriteSample(context.Background(), testEvent()))
	require.Len(writer.points, 1)

	p := writer.points[0]
	require.Equal(INFLUX_MEASUREMENT, p.Name())
	require.Equal(time.Unix(1700000059, 0).UTC(), p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	require.Equal(map[string]string{"meter": "kitchen", "device_id": "4711"}, tags)

	fields := map[string]interface{}{}
	for _, field := range p.FieldList() {
		fields[field.Key] = field.Value
	}
	require.Equal(10.5, fields["accumulated_kwh"])
	require.Equal(0.5, fields["sample_kwh"])
	require.Equal(true, fields["known"])
	require.Equal(false, fields["failed"])
}

func TestInfluxSinkPropagatesError(t *testing.T) {
	writer := &recordingPointWriter{err: errors.New("unauthorized")}
	s := &InfluxSink{writer: writer, logger: zap.NewNop()}
	assert.Error(t, s.WriteSample(context.Background(), testEvent()))
}

type recordingMessageWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *recordingMessageWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingMessageWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkWritesRecord(t *testing.T) {

	require := require.New(t)

	writer := &recordingMessageWriter{}
	s := newKafkaSinkWithWriter(writer, zap.NewNop())

	event := testEvent()
	event.Sample = energyhive.Unknown()
	event.Contribution = 0
	event.Err = errors.New("boom")
	require.NoError(s.WriteSample(context.Background(), event))
	require.Len(writer.messages, 1)
	require.Equal("kitchen", string(writer.messages[0].Key))

	var record SampleRecord
	require.NoError(json.Unmarshal(writer.messages[0].Value, &record))
	require.Equal("tick-1", record.TickId)
	require.False(record.Known)
	require.Equal(0.0, record.WattMinutes)
	require.Equal(10.5, record.AccumulatedKWh)
	require.Equal("boom", record.Error)

	require.NoError(s.Close())
	require.True(writer.closed)
}

func TestSinksFromConfig(t *testing.T) {

	cfg := &config.Config{}
	sinks, err := SinksFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, sinks)

	cfg.Kafka = config.KafkaConfig{Brokers: []string{"localhost:9092"}}
	_, err = SinksFromConfig(cfg, zap.NewNop())
	assert.Error(t, err, "topic is required")

	cfg.Kafka.Topic = "energy"
	cfg.InfluxDB = config.InfluxDBConfig{URL: "http://localhost:8086", Bucket: "energy"}
	sinks, err = SinksFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, SINK_NAME_INFLUX, sinks[0].Name())
	assert.Equal(t, SINK_NAME_KAFKA, sinks[1].Name())
	for _, s := range sinks {
		assert.NoError(t, s.Close())
	}
}
