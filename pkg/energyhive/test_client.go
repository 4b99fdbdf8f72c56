package energyhive

import (
	"context"
	"sync"
	"time"
)

type TestResponse struct {
	Sample EnergySample
	Err    error
}

type WindowCall struct {
	ApiKey   string
	DeviceId string
	Start    int64
	End      int64
}

// TestEnergyReader replays scripted responses in order and then keeps
// answering with Fallback.
type TestEnergyReader struct {
	mu            sync.Mutex
	responses     []TestResponse
	Fallback      TestResponse
	Devices       []DeviceDescriptor
	deviceListErr error
	// Delay holds every window request, honoring context cancellation.
	Delay time.Duration
	calls []WindowCall
}

func NewTestEnergyReader(responses ...TestResponse) *TestEnergyReader {
	return &TestEnergyReader{
		responses: responses,
		Fallback:  TestResponse{Sample: Unknown()},
		Devices: []DeviceDescriptor{
			{SID: "4711", CID: "PWER"},
			{SID: "4712", CID: "HEAT"},
		},
	}
}

func (r *TestEnergyReader) FetchDeviceList(ctx context.Context, apiKey string) ([]DeviceDescriptor, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Field: "apikey", Message: "api key is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deviceListErr != nil {
		return nil, r.deviceListErr
	}
	if len(r.Devices) == 0 {
		return nil, &EmptyResultError{Endpoint: ENDPOINT_SUMMARY}
	}
	return append([]DeviceDescriptor(nil), r.Devices...), nil
}

func (r *TestEnergyReader) FetchWindowEnergy(ctx context.Context, apiKey, deviceId string, start, end int64) (EnergySample, error) {
	r.mu.Lock()
	r.calls = append(r.calls, WindowCall{ApiKey: apiKey, DeviceId: deviceId, Start: start, End: end})
	resp := r.Fallback
	if len(r.responses) > 0 {
		resp = r.responses[0]
		r.responses = r.responses[1:]
	}
	delay := r.Delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Unknown(), &TransportError{Endpoint: ENDPOINT_HISTORY, Err: ctx.Err()}
		}
	}
	return resp.Sample, resp.Err
}

// FailDeviceList makes every following device list request return err.
func (r *TestEnergyReader) FailDeviceList(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deviceListErr = err
}

func (r *TestEnergyReader) Calls() []WindowCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WindowCall(nil), r.calls...)
}

var _ EnergyReader = (*TestEnergyReader)(nil)
