package domain

import (
	"errors"
	"time"

	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"
)

// MeterState is the cumulative reading of one meter.
type MeterState struct {
	AccumulatedEnergy float64                 `json:"accumulated_energy_kwh"`
	LastUpdated       time.Time               `json:"last_updated"`
	LastSample        energyhive.EnergySample `json:"last_sample"`
	LastWindow        PollWindow              `json:"last_window"`
}

// PollWindow is an inclusive range of epoch seconds covering one fully
// elapsed minute.
type PollWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (w PollWindow) IsZero() bool {
	return w.Start == 0 && w.End == 0
}

type DeviceCredential struct {
	ApiKey   string `json:"apikey"`
	DeviceId string `json:"device_id"`
}

func (c DeviceCredential) Valid() bool {
	return c.ApiKey != "" && c.DeviceId != ""
}

type UnknownMeterError struct {
	MeterId string
}

func (e *UnknownMeterError) Error() string {
	return "unknown meter: " + e.MeterId
}

func IsUnknownMeterError(err error) bool {
	var target *UnknownMeterError
	return errors.As(err, &target)
}
