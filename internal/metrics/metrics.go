package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "energyhive"

// Metrics keeps its own registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	ticks           *prometheus.CounterVec
	accumulated     *prometheus.GaugeVec
	lastSample      *prometheus.GaugeVec
	resyncs         *prometheus.CounterVec
	sinkWrites      *prometheus.CounterVec

	subscription *eventstream.Subscription
	eventStream  *eventstream.EventStream
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Histogram of Energyhive API request durations by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Total failed Energyhive API requests by endpoint and kind.",
		}, []string{"endpoint", "kind"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meter_ticks_total",
			Help:      "Total applied meter ticks by outcome (known, unknown, failed).",
		}, []string{"meter", "outcome"}),
		accumulated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meter_energy_kwh",
			Help:      "Accumulated energy per meter.",
		}, []string{"meter"}),
		lastSample: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "meter_last_sample_kwh",
			Help:      "Energy added by the last tick per meter.",
		}, []string{"meter"}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meter_resyncs_total",
			Help:      "Total timer realignments per meter.",
		}, []string{"meter"}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Total sink writes by sink and status.",
		}, []string{"sink", "status"}),
	}

	m.registry.MustRegister(
		m.requestDuration,
		m.requestErrors,
		m.ticks,
		m.accumulated,
		m.lastSample,
		m.resyncs,
		m.sinkWrites,
	)

	return m
}

// Instrument records Energyhive client requests.
func (m *Metrics) Instrument() *energyhive.Instrument {
	return &energyhive.Instrument{
		RecordTime: func(endpoint string, duration time.Duration, err error) {
			m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
			if err != nil {
				m.requestErrors.WithLabelValues(endpoint, errorKind(err)).Inc()
			}
		},
	}
}

// Subscribe feeds the collectors from meter and sink events.
func (m *Metrics) Subscribe(eventStream *eventstream.EventStream) {
	m.eventStream = eventStream
	m.subscription = eventStream.Subscribe(func(evt any) {
		m.Observe(evt)
	})
}

func (m *Metrics) Unsubscribe() {
	if m.subscription != nil {
		m.eventStream.Unsubscribe(m.subscription)
		m.subscription = nil
	}
}

func (m *Metrics) Observe(evt any) {
	switch ev := evt.(type) {
	case domain.MeterSampleEvent:
		outcome := "known"
		if ev.Err != nil {
			outcome = "failed"
		} else if !ev.Sample.Known {
			outcome = "unknown"
		}
		m.ticks.WithLabelValues(ev.MeterId, outcome).Inc()
		m.accumulated.WithLabelValues(ev.MeterId).Set(ev.State.AccumulatedEnergy)
		m.lastSample.WithLabelValues(ev.MeterId).Set(ev.Contribution)
	case domain.MeterResyncEvent:
		m.resyncs.WithLabelValues(ev.MeterId).Inc()
	case domain.SinkWriteEvent:
		status := "ok"
		if ev.Err != nil {
			status = "error"
		}
		m.sinkWrites.WithLabelValues(ev.Sink, status).Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func errorKind(err error) string {
	var terr *energyhive.TransportError
	switch {
	case errors.As(err, &terr) && terr.StatusCode > 0:
		return "status"
	case energyhive.IsTransportError(err):
		return "transport"
	case energyhive.IsParseError(err):
		return "parse"
	case energyhive.IsEmptyResultError(err):
		return "empty"
	case energyhive.IsConfigurationError(err):
		return "configuration"
	}
	return "other"
}
