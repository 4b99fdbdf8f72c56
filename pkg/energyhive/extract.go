package energyhive

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

type envelope struct {
	Data *[]json.RawMessage `json:"data"`
}

// DecodeEntries decodes the device entries of a provider response. The
// provider has answered with three shapes over time: an object carrying a
// data list, a bare list, and either of those encoded as a JSON string.
// present is false when the payload is an object without a data list.
// Entries that do not decode are skipped.
func DecodeEntries(body []byte) (entries []DeviceDescriptor, present bool, err error) {
	return decodeEntries(body, 0)
}

func decodeEntries(body []byte, depth int) ([]DeviceDescriptor, bool, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, errors.New("empty body")
	}
	switch body[0] {
	case '"':
		if depth > 0 {
			return nil, false, errors.New("nested string payload")
		}
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return nil, false, err
		}
		return decodeEntries([]byte(inner), depth+1)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, false, err
		}
		return decodeList(raw), true, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, false, err
		}
		if env.Data == nil {
			return nil, false, nil
		}
		return decodeList(*env.Data), true, nil
	default:
		return nil, false, errors.New("unexpected payload")
	}
}

func decodeList(raw []json.RawMessage) []DeviceDescriptor {
	entries := make([]DeviceDescriptor, 0, len(raw))
	for i := range raw {
		var entry DeviceDescriptor
		if err := json.Unmarshal(raw[i], &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// ExtractEnergy returns the value of the first field of the first bucket of
// the first entry matching deviceId. Any missing piece yields Unknown.
func ExtractEnergy(entries []DeviceDescriptor, deviceId string) EnergySample {
	for i := range entries {
		if string(entries[i].SID) != deviceId {
			continue
		}
		buckets := entries[i].Buckets()
		if len(buckets) == 0 {
			return Unknown()
		}
		value, ok := firstField(buckets[0])
		if !ok {
			return Unknown()
		}
		return parseBucketValue(value)
	}
	return Unknown()
}

func firstField(bucket json.RawMessage) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(bucket)
	if len(trimmed) == 0 {
		return nil, false
	}
	// some payloads carry the bare value instead of a keyed bucket
	if trimmed[0] != '{' {
		return trimmed, true
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	if !dec.More() {
		return nil, false
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	var value json.RawMessage
	if err := dec.Decode(&value); err != nil {
		return nil, false
	}
	return value, true
}

func parseBucketValue(raw json.RawMessage) EnergySample {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Unknown()
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Unknown()
		}
		return parseStringValue(s)
	case 'n', 't', 'f', '{', '[':
		return Unknown()
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Unknown()
		}
		return Known(f)
	}
}

func parseStringValue(s string) EnergySample {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, UNDEFINED_SENTINEL) {
		return Unknown()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Unknown()
	}
	return Known(f)
}

// FilterDevices keeps the entries whose channel id contains marker.
func FilterDevices(devices []DeviceDescriptor, marker string) ([]DeviceDescriptor, error) {
	var filtered []DeviceDescriptor
	for i := range devices {
		if devices[i].CID != "" && strings.Contains(devices[i].CID, marker) {
			filtered = append(filtered, devices[i])
		}
	}
	if len(filtered) == 0 {
		return nil, ErrNoDevices
	}
	return filtered, nil
}

func ToPairedDevices(devices []DeviceDescriptor, apiKey string) []PairedDevice {
	paired := make([]PairedDevice, 0, len(devices))
	for i := range devices {
		paired = append(paired, PairedDevice{
			Name:     devices[i].Name(),
			DeviceId: string(devices[i].SID),
			ApiKey:   apiKey,
		})
	}
	return paired
}
