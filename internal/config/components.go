package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/squidcore/proxy/internal/errs"
	"github.com/squidcore/proxy/internal/logging"
)

const (
	// ErrUnknownComponent is returned when a lookup names a key that was
	// never registered.
	ErrUnknownComponent errs.CodeError = errs.MinConfig + iota
	// ErrCyclicDependency is returned by Start when the dependency graph
	// cannot be linearized.
	ErrCyclicDependency
	// ErrComponentStart wraps the first component Start failure encountered.
	ErrComponentStart
)

func init() {
	errs.Register(errs.MinConfig, func(c errs.CodeError) string {
		switch c {
		case ErrUnknownComponent:
			return "config: unknown component"
		case ErrCyclicDependency:
			return "config: cyclic component dependency"
		case ErrComponentStart:
			return "config: component start failed"
		default:
			return "config: error"
		}
	})
}

// Components is an ordered registry of named Component instances. Start
// brings every registered component up in dependency order, one pass,
// matching the single start-all-components sweep a supervisor performs at
// boot; Stop tears them down in reverse order.
type Components struct {
	mu  sync.RWMutex
	log logging.FuncLog
	reg map[string]Component
}

// NewComponents returns an empty registry. log is handed to every component
// at Register time via Init.
func NewComponents(log logging.FuncLog) *Components {
	return &Components{reg: make(map[string]Component), log: log}
}

// Register adds a component under key, calling Init on it immediately.
func (c *Components) Register(key string, cpt Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cpt.Init(c.log)
	c.reg[key] = cpt
}

// Get returns the component registered under key, or false if none is.
func (c *Components) Get(key string) (Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cpt, ok := c.reg[key]
	return cpt, ok
}

// order returns registered keys topologically sorted by Dependencies, with
// ties broken alphabetically for deterministic boot order.
func (c *Components) order() ([]string, errs.Error) {
	visited := make(map[string]int) // 0=unvisited 1=visiting 2=done
	var out []string

	keys := make([]string, 0, len(c.reg))
	for k := range c.reg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var visit func(key string) errs.Error
	visit = func(key string) errs.Error {
		switch visited[key] {
		case 2:
			return nil
		case 1:
			return ErrCyclicDependency.Error(fmt.Errorf("component %q", key))
		}
		visited[key] = 1
		cpt, ok := c.reg[key]
		if !ok {
			return ErrUnknownComponent.Error(fmt.Errorf("dependency %q", key))
		}
		deps := append([]string(nil), cpt.Dependencies()...)
		sort.Strings(deps)
		for _, d := range deps {
			if e := visit(d); e != nil {
				return e
			}
		}
		visited[key] = 2
		out = append(out, key)
		return nil
	}

	for _, k := range keys {
		if e := visit(k); e != nil {
			return nil, e
		}
	}
	return out, nil
}

// Start brings up every registered component in dependency order. The first
// failure stops the pass; components already started are left running.
func (c *Components) Start() errs.Error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order, e := c.order()
	if e != nil {
		return e
	}
	for _, key := range order {
		if e := c.reg[key].Start(); e != nil {
			return ErrComponentStart.Error(fmt.Errorf("%s: %w", key, e))
		}
	}
	return nil
}

// Stop tears down every registered component in reverse start order. Errors
// from individual components are not fatal to the sweep; Stop always visits
// every component.
func (c *Components) Stop() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	order, e := c.order()
	if e != nil {
		for _, cpt := range c.reg {
			cpt.Stop()
		}
		return
	}
	for i := len(order) - 1; i >= 0; i-- {
		c.reg[order[i]].Stop()
	}
}

// Reload calls Reload on every registered component, collecting the first
// error encountered but continuing through the rest.
func (c *Components) Reload() errs.Error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var first errs.Error
	for _, cpt := range c.reg {
		if e := cpt.Reload(); e != nil && first == nil {
			first = e
		}
	}
	return first
}
