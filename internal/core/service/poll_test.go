package service

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePollWindow(t *testing.T) {

	assert := assert.New(t)

	// 2023-11-14 22:13:20 UTC
	w := ComputePollWindow(time.Unix(1700000000, 0))
	assert.Equal(int64(1699999979), w.End)
	assert.Equal(int64(1699999920), w.Start)

	// exactly on a minute boundary
	w = ComputePollWindow(time.Unix(1699999980, 0))
	assert.Equal(int64(1699999979), w.End)

	// last second of a minute
	w = ComputePollWindow(time.Unix(1700000039, 999_000_000))
	assert.Equal(int64(1699999979), w.End)
}

func TestComputePollWindowProperty(t *testing.T) {

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		ts := rnd.Int63n(4_000_000_000)
		w := ComputePollWindow(time.Unix(ts, 0))
		require.Equal(t, (ts/60)*60-1, w.End, "ts=%d", ts)
		require.Equal(t, w.End-59, w.Start, "ts=%d", ts)
		require.Equal(t, int64(0), (w.Start)%60, "window starts on a minute boundary")
		require.Less(t, w.End, ts)
	}
}

func TestShouldResync(t *testing.T) {

	assert := assert.New(t)

	base := int64(1699999980) // hh:mm:00
	assert.False(ShouldResync(base, 5))
	assert.False(ShouldResync(base+4, 5))
	assert.True(ShouldResync(base+5, 5))
	assert.True(ShouldResync(base+59, 5))
	assert.False(ShouldResync(base+60, 5))

	// threshold beyond the minute never resyncs
	assert.False(ShouldResync(base+59, 60))
}

func TestNextAlignedDelay(t *testing.T) {

	assert := assert.New(t)

	now := time.Unix(1699999980, 0).Add(2 * time.Second)
	assert.Equal(58*time.Second, NextAlignedDelay(now, time.Minute))
	assert.Equal(time.Minute, NextAlignedDelay(time.Unix(1699999980, 0), time.Minute))
	assert.Equal(time.Duration(0), NextAlignedDelay(now, 0))

	d := NextAlignedDelay(now.Add(123*time.Millisecond), 50*time.Millisecond)
	assert.Greater(d, time.Duration(0))
	assert.LessOrEqual(d, 50*time.Millisecond)
}

func TestSampleContribution(t *testing.T) {

	assert := assert.New(t)

	assert.InDelta(1.0, SampleContribution(energyhive.Known(60000)), 1e-12)
	assert.Equal(0.0, SampleContribution(energyhive.Unknown()))
	assert.Equal(0.0, SampleContribution(energyhive.Known(-10)))
	assert.Equal(0.0, SampleContribution(energyhive.Known(math.NaN())))
	assert.Equal(0.0, SampleContribution(energyhive.Known(math.Inf(1))))
}

func TestAccumulateSumsKnownSamples(t *testing.T) {

	rnd := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		var state domain.MeterState
		var expected float64
		n := rnd.Intn(30)
		for i := 0; i < n; i++ {
			var sample energyhive.EnergySample
			if rnd.Intn(3) == 0 {
				sample = energyhive.Unknown()
			} else {
				v := float64(rnd.Intn(200000))
				sample = energyhive.Known(v)
				expected += v / 60000
			}
			prev := state.AccumulatedEnergy
			state, _ = Accumulate(state, domain.PollWindow{}, sample, time.Now())
			require.GreaterOrEqual(t, state.AccumulatedEnergy, prev)
		}
		require.InDelta(t, expected, state.AccumulatedEnergy, 1e-9)
	}
}

func TestAccumulateRecordsLastSample(t *testing.T) {

	now := time.Unix(1700000005, 0)
	window := ComputePollWindow(now)
	state, added := Accumulate(domain.MeterState{AccumulatedEnergy: 2}, window, energyhive.Known(30000), now)

	assert.InDelta(t, 0.5, added, 1e-12)
	assert.InDelta(t, 2.5, state.AccumulatedEnergy, 1e-12)
	assert.Equal(t, now, state.LastUpdated)
	assert.Equal(t, window, state.LastWindow)
	assert.Equal(t, energyhive.Known(30000), state.LastSample)
}
