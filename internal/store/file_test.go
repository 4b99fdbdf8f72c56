package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStoreRoundTrip(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path, zap.NewNop())
	require.NoError(err)

	_, found, err := s.LoadMeterState("kitchen")
	require.NoError(err)
	require.False(found)

	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	state := domain.MeterState{
		AccumulatedEnergy: 12.5,
		LastUpdated:       updated,
		LastSample:        energyhive.Known(1500),
		LastWindow:        domain.PollWindow{Start: 1714557540, End: 1714557599},
	}
	require.NoError(s.SaveMeterState("kitchen", state))
	require.NoError(s.SaveCredential("kitchen", domain.DeviceCredential{ApiKey: "key", DeviceId: "4711"}))

	// reopen from disk
	reopened, err := NewFileStore(path, zap.NewNop())
	require.NoError(err)

	loaded, found, err := reopened.LoadMeterState("kitchen")
	require.NoError(err)
	require.True(found)
	require.InDelta(12.5, loaded.AccumulatedEnergy, 1e-12)
	require.True(updated.Equal(loaded.LastUpdated))
	require.Equal(state.LastSample, loaded.LastSample)
	require.Equal(state.LastWindow, loaded.LastWindow)

	cred, found, err := reopened.LoadCredential("kitchen")
	require.NoError(err)
	require.True(found)
	require.Equal("4711", cred.DeviceId)

	info, err := os.Stat(path)
	require.NoError(err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreCorruptFile(t *testing.T) {

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path, zap.NewNop())
	assert.Error(t, err)
}

func TestFileStoreEmptyFile(t *testing.T) {

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	_, found, err := s.LoadCredential("kitchen")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {

	s := NewMemoryStore()
	require.NoError(t, s.SaveMeterState("a", domain.MeterState{AccumulatedEnergy: 1}))

	state, found, _ := s.LoadMeterState("a")
	assert.True(t, found)
	assert.Equal(t, 1.0, state.AccumulatedEnergy)

	_, found, _ = s.LoadMeterState("b")
	assert.False(t, found)
}
