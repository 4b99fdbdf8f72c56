package sink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const SINK_NAME_KAFKA = "kafka"

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	writer kafkaMessageWriter
	logger *zap.Logger
}

// SampleRecord is the JSON value of every Kafka message. Messages are keyed
// by meter id so a meter's ticks stay ordered within a partition.
type SampleRecord struct {
	TickId         string  `json:"tick_id"`
	MeterId        string  `json:"meter_id"`
	DeviceId       string  `json:"device_id"`
	WindowStart    int64   `json:"window_start"`
	WindowEnd      int64   `json:"window_end"`
	Known          bool    `json:"known"`
	WattMinutes    float64 `json:"watt_minutes"`
	SampleKWh      float64 `json:"sample_kwh"`
	AccumulatedKWh float64 `json:"accumulated_kwh"`
	Error          string  `json:"error,omitempty"`
}

func NewKafkaSink(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSinkWithWriter(writer, logger), nil
}

func newKafkaSinkWithWriter(writer kafkaMessageWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		logger: logger.With(zap.String("sink", SINK_NAME_KAFKA)),
	}
}

func (s *KafkaSink) Name() string {
	return SINK_NAME_KAFKA
}

func (s *KafkaSink) WriteSample(ctx context.Context, event domain.MeterSampleEvent) error {
	value, err := json.Marshal(SampleToRecord(event))
	if err != nil {
		return err
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.MeterId),
		Value: value,
		Time:  windowTime(event),
	})
	if err != nil {
		s.logger.Warn("kafka: write failed", zap.String("meter", event.MeterId), zap.Error(err))
	}
	return err
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func SampleToRecord(event domain.MeterSampleEvent) SampleRecord {
	record := SampleRecord{
		TickId:         event.TickId,
		MeterId:        event.MeterId,
		DeviceId:       event.DeviceId,
		WindowStart:    event.Window.Start,
		WindowEnd:      event.Window.End,
		Known:          event.Sample.Known,
		SampleKWh:      event.Contribution,
		AccumulatedKWh: event.State.AccumulatedEnergy,
	}
	if event.Sample.Known {
		record.WattMinutes = event.Sample.Value
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	}
	return record
}

var _ port.SampleSink = (*KafkaSink)(nil)
