package store

import (
	"testing"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestMissingCredentials(t *testing.T) {

	require := require.New(t)

	cfg := &config.Config{
		Meters: []config.MeterConfig{
			{Id: "kitchen", DeviceId: "4711"},
			{Id: "garage", DeviceId: "4712", ApiKey: "own"},
			{Id: "cellar", DeviceId: "4713"},
		},
	}
	s := NewMemoryStore()
	require.NoError(s.SaveCredential("cellar", domain.DeviceCredential{ApiKey: "repaired", DeviceId: "4713"}))

	missing, err := MissingCredentials(cfg, s)
	require.NoError(err)
	require.Equal([]string{"kitchen"}, missing)

	cfg.Energyhive.ApiKey = "global"
	missing, err = MissingCredentials(cfg, s)
	require.NoError(err)
	require.Empty(missing)
}
