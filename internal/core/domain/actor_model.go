package domain

import (
	"time"

	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_METER        = "meter"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_SINK         = "sink"
)

// Meter requests. The master forwards them to the meter named by MeterId.

type MeterRequest interface {
	ActorRequest
	TargetMeter() string
}

type MeterRequestMixIn struct {
	ActorRequestMixIn
	MeterId string
}

func (r MeterRequestMixIn) TargetMeter() string {
	return r.MeterId
}

type MeterStartRequest struct {
	MeterRequestMixIn
	IntervalMillis uint32
}

type MeterStartResponse struct {
	ActorResponseMixIn
	Changed bool
}

type MeterStopRequest struct {
	MeterRequestMixIn
}

type MeterStopResponse struct {
	ActorResponseMixIn
	Changed bool
}

type GetMeterStateRequest struct {
	MeterRequestMixIn
}

type GetMeterStateResponse struct {
	ActorResponseMixIn
	MeterId   string
	Name      string
	DeviceId  string
	Running   bool
	Available bool
	State     MeterState
}

type SetCredentialRequest struct {
	MeterRequestMixIn
	Credential DeviceCredential
}

type SetCredentialResponse struct {
	ActorResponseMixIn
}

type SetAvailabilityRequest struct {
	MeterRequestMixIn
	Available bool
	Reason    string
}

type ListMetersRequest struct {
	ActorRequestMixIn
}

type ListMetersResponse struct {
	ActorResponseMixIn
	MeterIds []string
}

// CheckAvailabilityRequest asks every meter to validate its device id
// against the provider device list.
type CheckAvailabilityRequest struct {
	ActorRequestMixIn
}

type CheckAvailabilityResponse struct {
	ActorResponseMixIn
	Meters int
}

// RepublishStateRequest asks a meter to publish all of its sensor values
// again, e.g. after the broker connection was (re)established.
type RepublishStateRequest struct {
	ActorRequestMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// MeterSampleEvent is published on the event stream after every applied tick.
type MeterSampleEvent struct {
	TickId       string
	MeterId      string
	DeviceId     string
	Window       PollWindow
	Sample       energyhive.EnergySample
	Contribution float64
	State        MeterState
	Err          error
}

// MeterResyncEvent is published when a meter restarts its timer to realign
// with the top of the minute.
type MeterResyncEvent struct {
	MeterId      string
	SecondOfTick int64
}

// SinkWriteEvent reports the outcome of forwarding one tick to an external
// sink.
type SinkWriteEvent struct {
	Sink     string
	MeterId  string
	Duration time.Duration
	Err      error
}

// ensure interface compliance
var _ MeterRequest = (*MeterStartRequest)(nil)
var _ MeterRequest = (*SetCredentialRequest)(nil)
