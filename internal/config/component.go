// Package config defines the lifecycle contract shared by every long-lived
// piece of the core (reactor, port listeners, kid workers): a component has a
// type name, can be started/stopped/reloaded, and reports whether it is
// currently running so a supervisor can make restart decisions.
package config

import (
	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/logging"
)

// Component is the lifecycle contract a registrable unit must satisfy.
type Component interface {
	// Type identifies the component's kind, e.g. "reactor", "port", "kid".
	Type() string

	// Init wires the component's logger accessor before Start is ever called.
	Init(log logging.FuncLog)

	// Start brings the component up. Called once per Components.Start pass.
	Start() errs.Error

	// Reload re-applies configuration without a full stop/start cycle when
	// the component supports it; components that cannot hot-reload may
	// perform an internal stop/start and return nil on success.
	Reload() errs.Error

	// Stop brings the component down. Must be safe to call even if Start
	// was never called or already returned an error.
	Stop()

	// IsStarted reports whether Start has completed successfully and Stop
	// has not yet been called.
	IsStarted() bool

	// IsRunning reports whether the component's background work (if any)
	// is still actively executing.
	IsRunning() bool

	// Dependencies names other component keys that must already be started
	// before this one's Start is called.
	Dependencies() []string
}
