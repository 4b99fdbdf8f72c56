package port

import (
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"
)

// StateStore keeps per meter state across restarts.
type StateStore interface {
	LoadMeterState(meterId string) (domain.MeterState, bool, error)
	SaveMeterState(meterId string, state domain.MeterState) error
	LoadCredential(meterId string) (domain.DeviceCredential, bool, error)
	SaveCredential(meterId string, credential domain.DeviceCredential) error
}

type EnergyReader = energyhive.EnergyReader
