package energyhive

import (
	"errors"
	"fmt"
)

var ErrNoDevices = errors.New("no matching devices")

// TransportError is returned on network failures and non-2xx responses.
// StatusCode is 0 when no response was received.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("energyhive transport error at %s: %v", e.Endpoint, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("energyhive transport error (%d) at %s: %v", e.StatusCode, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("energyhive transport error (%d) at %s", e.StatusCode, e.Endpoint)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ParseError struct {
	Endpoint string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("energyhive parse error at %s: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type EmptyResultError struct {
	Endpoint string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("energyhive returned no device data at %s", e.Endpoint)
}

type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Message)
}

func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

func IsEmptyResultError(err error) bool {
	var target *EmptyResultError
	return errors.As(err, &target)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
