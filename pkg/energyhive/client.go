package energyhive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	ENDPOINT_SUMMARY = "getCurrentValuesSummary"
	ENDPOINT_HISTORY = "getHV"
)

type Client struct {
	http       *resty.Client
	baseURL    string
	instrument []Instrument
	logger     *zap.Logger
}

func traceLoggerInstrumentation(logger *zap.Logger) *Instrument {
	return &Instrument{
		RecordTime: func(endpoint string, duration time.Duration, err error) {
			logger.Debug("energyhive request", zap.String("endpoint", endpoint),
				zap.Int64("millis", duration.Milliseconds()), zap.Bool("failed", err != nil))
		},
	}
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, instrumentation *Instrument) *Client {
	if baseURL == "" {
		baseURL = DEFAULT_BASE_URL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	logger = logger.With(zap.String("target", "energyhive"))

	var inst []Instrument
	if logInst := traceLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:       http,
		baseURL:    baseURL,
		instrument: inst,
		logger:     logger,
	}
}

// FetchDeviceList returns every device entry reported for apiKey. Used by
// pairing and availability checks only.
func (c *Client) FetchDeviceList(ctx context.Context, apiKey string) ([]DeviceDescriptor, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Field: "apikey", Message: "api key is required"}
	}
	params := map[string]string{
		"token": apiKey,
	}
	endpoint := c.logURL(ENDPOINT_SUMMARY, params)

	body, err := c.get(ctx, ENDPOINT_SUMMARY, params)
	if err != nil {
		c.logger.Warn("energyhive@devices request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, err
	}
	entries, present, err := DecodeEntries(body)
	if err != nil {
		c.logger.Warn("energyhive@devices invalid response", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &ParseError{Endpoint: endpoint, Err: err}
	}
	if !present || len(entries) == 0 {
		c.logger.Warn("energyhive@devices no device data", zap.String("endpoint", endpoint))
		return nil, &EmptyResultError{Endpoint: endpoint}
	}
	return entries, nil
}

// FetchWindowEnergy returns the watt-minutes consumed by deviceId between
// start and end (epoch seconds, inclusive).
func (c *Client) FetchWindowEnergy(ctx context.Context, apiKey, deviceId string, start, end int64) (EnergySample, error) {
	if apiKey == "" {
		return Unknown(), &ConfigurationError{Field: "apikey", Message: "api key is required"}
	}
	if deviceId == "" {
		return Unknown(), &ConfigurationError{Field: "device_id", Message: "device id is required"}
	}
	params := map[string]string{
		"token":     apiKey,
		"period":    "custom",
		"fromTime":  strconv.FormatInt(start, 10),
		"toTime":    strconv.FormatInt(end, 10),
		"type":      DEVICE_TYPE_POWER,
		"aggPeriod": "hour",
		"aggFunc":   "sum",
	}
	endpoint := c.logURL(ENDPOINT_HISTORY, params)
	fields := []zap.Field{
		zap.String("endpoint", endpoint),
		zap.String("device", deviceId),
		zap.Int64("start", start),
		zap.Int64("end", end),
	}

	body, err := c.get(ctx, ENDPOINT_HISTORY, params)
	if err != nil {
		c.logger.Warn("energyhive@history request failed", append(fields, zap.Error(err))...)
		return Unknown(), err
	}
	entries, present, err := DecodeEntries(body)
	if err == nil && !present {
		err = errors.New("missing data field")
	}
	if err != nil {
		c.logger.Warn("energyhive@history invalid response", append(fields, zap.Error(err))...)
		return Unknown(), &ParseError{Endpoint: endpoint, Err: err}
	}

	sample := ExtractEnergy(entries, deviceId)
	if !sample.Known {
		c.logger.Debug("energyhive@history no reading for device", fields...)
	}
	return sample, nil
}

// Discover lists the power meters reachable with apiKey.
func (c *Client) Discover(ctx context.Context, apiKey, marker string) ([]PairedDevice, error) {
	paired, err := DiscoverDevices(ctx, c, apiKey, marker)
	if errors.Is(err, ErrNoDevices) {
		c.logger.Info("energyhive@discover no power devices")
	}
	return paired, err
}

// DiscoverDevices runs pairing discovery on any reader. An empty marker
// selects power meters.
func DiscoverDevices(ctx context.Context, reader EnergyReader, apiKey, marker string) ([]PairedDevice, error) {
	devices, err := reader.FetchDeviceList(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if marker == "" {
		marker = DEVICE_TYPE_POWER
	}
	filtered, err := FilterDevices(devices, marker)
	if err != nil {
		return nil, err
	}
	return ToPairedDevices(filtered, apiKey), nil
}

// VerifyDevice checks that apiKey can read the device list and that
// deviceId is part of it.
func VerifyDevice(ctx context.Context, reader EnergyReader, apiKey, deviceId string) error {
	if deviceId == "" {
		return &ConfigurationError{Field: "device_id", Message: "device id is required"}
	}
	devices, err := reader.FetchDeviceList(ctx, apiKey)
	if err != nil {
		return err
	}
	for i := range devices {
		if string(devices[i].SID) == deviceId {
			return nil
		}
	}
	return fmt.Errorf("device %s: %w", deviceId, ErrNoDevices)
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	done := RecordTimer(endpoint, c.instrument)
	logURL := c.logURL(endpoint, params)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/" + endpoint)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = logURL
		}
		terr := &TransportError{Endpoint: logURL, Err: err}
		done(terr)
		return nil, terr
	}
	if !resp.IsSuccess() {
		terr := &TransportError{Endpoint: logURL, StatusCode: resp.StatusCode(),
			Err: fmt.Errorf("unexpected status %s", resp.Status())}
		done(terr)
		return nil, terr
	}
	done(nil)
	return resp.Body(), nil
}

// logURL renders the request URL with the token redacted.
func (c *Client) logURL(endpoint string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if k == "token" {
			v = "*redacted*"
		}
		values.Set(k, v)
	}
	return fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, values.Encode())
}

// ensure interface compliance
var _ EnergyReader = (*Client)(nil)
