package energyhive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	DEFAULT_BASE_URL = "https://www.energyhive.com/mobile_proxy"
	// device type marker carried in the channel id (cid) of power meters
	DEVICE_TYPE_POWER = "PWER"
	// sentinel reported by the provider for buckets without a valid reading
	UNDEFINED_SENTINEL = "undef"
	// the provider reports watt-minutes, 60000 Wm = 1 kWh
	WATT_MINUTES_PER_KWH = 60000
)

// EnergySample is a single reading for a poll window. Known is false when
// the provider reported no valid reading.
type EnergySample struct {
	Value float64 `json:"value"`
	Known bool    `json:"known"`
}

func Known(value float64) EnergySample {
	return EnergySample{Value: value, Known: true}
}

func Unknown() EnergySample {
	return EnergySample{}
}

func (s EnergySample) String() string {
	if !s.Known {
		return "unknown"
	}
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

// DeviceDescriptor is one entry of the provider summary / history payloads.
type DeviceDescriptor struct {
	SID  FlexString      `json:"sid"`
	CID  string          `json:"cid"`
	Data json.RawMessage `json:"data"`
}

func (d DeviceDescriptor) Name() string {
	return fmt.Sprintf("%s_%s", d.CID, d.SID)
}

// Buckets returns the aggregate buckets of the entry, nil when data is not a
// list.
func (d DeviceDescriptor) Buckets() []json.RawMessage {
	var buckets []json.RawMessage
	if err := json.Unmarshal(d.Data, &buckets); err != nil {
		return nil
	}
	return buckets
}

// PairedDevice is a discovery result ready to be registered as a meter.
type PairedDevice struct {
	Name     string `json:"name"`
	DeviceId string `json:"device_id"`
	ApiKey   string `json:"apikey,omitempty"`
}

// FlexString accepts both JSON strings and numbers. Older payloads encode
// sid as a number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

type EnergyReader interface {
	FetchDeviceList(ctx context.Context, apiKey string) ([]DeviceDescriptor, error)
	FetchWindowEnergy(ctx context.Context, apiKey, deviceId string, start, end int64) (EnergySample, error)
}

type Instrument struct {
	RecordTime func(endpoint string, duration time.Duration, err error)
}

func RecordTimer(endpoint string, instrument []Instrument) func(error) {
	if instrument == nil {
		return func(error) {}
	}

	start := time.Now()
	return func(err error) {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(endpoint, duration, err)
		}
	}
}
