package store

import (
	"fmt"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"
)

// MissingCredentials lists the meters that have neither a configured api key
// (own or global) nor a re-paired credential in s.
func MissingCredentials(cfg *config.Config, s port.StateStore) ([]string, error) {
	var missing []string
	for _, meter := range cfg.Meters {
		if meter.EffectiveApiKey(cfg.Energyhive.ApiKey) != "" {
			continue
		}
		stored, found, err := s.LoadCredential(meter.Id)
		if err != nil {
			return nil, fmt.Errorf("meter %s: %w", meter.Id, err)
		}
		if !found || !stored.Valid() {
			missing = append(missing, meter.Id)
		}
	}
	return missing, nil
}
