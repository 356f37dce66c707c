// Package sqlite provides the public factory for the SQLite bridge while
// keeping its implementation internal.
package sqlite

import (
	"github.com/mesh-intelligence/websql/internal/sqlite"
	"github.com/mesh-intelligence/websql/pkg/types"
)

// Bridge is the SQLite implementation of types.Bridge.
type Bridge = sqlite.Bridge

// Option configures a Bridge.
type Option = sqlite.Option

// WithLogger sets the logger for connection and statement events.
var WithLogger = sqlite.WithLogger

// NewBridge creates a Bridge and attaches it to config. Call Detach when
// done.
//
// Example:
//
//	bridge, err := sqlite.NewBridge(types.Config{
//	    Driver:  types.DriverModernC,
//	    DataDir: ".websql-db",
//	})
//	defer bridge.Detach()
func NewBridge(config types.Config, opts ...Option) (*Bridge, error) {
	b := sqlite.NewBridge(opts...)
	if err := b.Attach(config); err != nil {
		return nil, err
	}
	return b, nil
}
