package service

import (
	"math"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"
)

const (
	WINDOW_SECONDS = 60
)

// ComputePollWindow returns the last minute that fully elapsed before now.
func ComputePollWindow(now time.Time) domain.PollWindow {
	end := floorDiv(now.Unix(), WINDOW_SECONDS)*WINDOW_SECONDS - 1
	return domain.PollWindow{
		Start: end - (WINDOW_SECONDS - 1),
		End:   end,
	}
}

// ShouldResync reports whether a tick observed at nowSeconds drifted far
// enough from the top of the minute to restart the timer.
func ShouldResync(nowSeconds int64, thresholdSeconds uint32) bool {
	secondOfMinute := nowSeconds - floorDiv(nowSeconds, WINDOW_SECONDS)*WINDOW_SECONDS
	return secondOfMinute >= int64(thresholdSeconds)
}

// NextAlignedDelay is the time left until the next multiple of interval
// since the epoch. A zero or negative interval yields zero.
func NextAlignedDelay(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	elapsed := time.Duration(now.UnixNano()) % interval
	if elapsed < 0 {
		elapsed += interval
	}
	return interval - elapsed
}

func WattMinutesToKWh(wattMinutes float64) float64 {
	return wattMinutes / energyhive.WATT_MINUTES_PER_KWH
}

// SampleContribution is the kWh a sample adds to the meter. Unknown,
// negative and non finite readings add nothing.
func SampleContribution(sample energyhive.EnergySample) float64 {
	if !sample.Known || math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) || sample.Value <= 0 {
		return 0
	}
	return WattMinutesToKWh(sample.Value)
}

// Accumulate folds one polled sample into state.
func Accumulate(state domain.MeterState, window domain.PollWindow, sample energyhive.EnergySample, now time.Time) (domain.MeterState, float64) {
	contribution := SampleContribution(sample)
	state.AccumulatedEnergy += contribution
	state.LastUpdated = now
	state.LastSample = sample
	state.LastWindow = window
	return state, contribution
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
