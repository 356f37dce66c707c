package types

import (
	"errors"
	"time"
)

// Config holds driver selection and tuning for the SQLite bridge.
type Config struct {
	Driver  string `json:"driver" yaml:"driver" mapstructure:"driver"`
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// Async defers every bridge completion to a worker pool instead of
	// invoking it inside the call.
	Async   bool `json:"async" yaml:"async" mapstructure:"async"`
	Workers int  `json:"workers" yaml:"workers" mapstructure:"workers"`

	ConnectRetries int           `json:"connect_retries" yaml:"connect_retries" mapstructure:"connect_retries"`
	BusyTimeout    time.Duration `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// Supported driver names. DriverModernC is pure Go; DriverMattn needs cgo.
const (
	DriverModernC = "sqlite"
	DriverMattn   = "sqlite3"
)

// Defaults applied by the getters when a field is left zero.
const (
	DefaultWorkers        = 4
	DefaultConnectRetries = 3
	DefaultBusyTimeout    = 5 * time.Second
)

// Config validation errors.
var (
	ErrDriverEmpty         = errors.New("driver must not be empty")
	ErrDriverUnknown       = errors.New("unknown driver")
	ErrWorkersInvalid      = errors.New("workers must not be negative")
	ErrConnectRetryInvalid = errors.New("connect retries must not be negative")
	ErrBusyTimeoutInvalid  = errors.New("busy timeout must not be negative")
)

var knownDrivers = map[string]bool{
	DriverModernC: true,
	DriverMattn:   true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Driver == "" {
		return ErrDriverEmpty
	}
	if !knownDrivers[c.Driver] {
		return ErrDriverUnknown
	}
	if c.Workers < 0 {
		return ErrWorkersInvalid
	}
	if c.ConnectRetries < 0 {
		return ErrConnectRetryInvalid
	}
	if c.BusyTimeout < 0 {
		return ErrBusyTimeoutInvalid
	}
	return nil
}

// GetWorkers returns the worker pool size, or DefaultWorkers if unset.
func (c Config) GetWorkers() int {
	if c.Workers == 0 {
		return DefaultWorkers
	}
	return c.Workers
}

// GetConnectRetries returns the number of connect attempts, or
// DefaultConnectRetries if unset.
func (c Config) GetConnectRetries() int {
	if c.ConnectRetries == 0 {
		return DefaultConnectRetries
	}
	return c.ConnectRetries
}

// GetBusyTimeout returns the SQLite busy timeout, or DefaultBusyTimeout if unset.
func (c Config) GetBusyTimeout() time.Duration {
	if c.BusyTimeout == 0 {
		return DefaultBusyTimeout
	}
	return c.BusyTimeout
}
